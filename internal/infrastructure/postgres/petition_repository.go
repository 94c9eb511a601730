package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/petition-hub/petition-hub/internal/domain/petition"
)

const petitionColumns = `id, translations, state, debate_state, signature_count, last_signed_at,
	moderation_threshold_reached_at, referral_threshold_reached_at, debate_threshold_reached_at,
	threshold_for_referral, threshold_for_debate, signature_count_reset_at, signature_count_validated_at,
	moderated_at, opened_at, closed_at, referred_at, rejected_at, rejection_code, rejection_details,
	completed_at, archived_at, debate_scheduled_on, created_at, updated_at`

const countUpdateColumns = `p.id, p.signature_count, p.state, p.debate_state,
	p.moderation_threshold_reached_at, p.referral_threshold_reached_at, p.debate_threshold_reached_at`

// PetitionRepository implements petition.Repository.
type PetitionRepository struct {
	db DB
}

func NewPetitionRepository(db DB) *PetitionRepository {
	return &PetitionRepository{db: db}
}

func (r *PetitionRepository) Create(ctx context.Context, p *petition.Petition) error {
	translations, err := p.TranslationsJSON()
	if err != nil {
		return fmt.Errorf("encode translations: %w", err)
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO petitions
		(translations, state, debate_state, signature_count, threshold_for_referral, threshold_for_debate, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, translations, p.State, p.DebateState, p.SignatureCount, p.ThresholdForReferral, p.ThresholdForDebate, p.CreatedAt, p.UpdatedAt)
	return translate(row.Scan(&p.ID))
}

func (r *PetitionRepository) GetByID(ctx context.Context, id int64) (*petition.Petition, error) {
	row := r.db.QueryRow(ctx, `SELECT `+petitionColumns+` FROM petitions WHERE id=$1`, id)
	return scanPetition(row)
}

func (r *PetitionRepository) List(ctx context.Context, filter petition.Filter, limit, offset int) ([]*petition.Petition, error) {
	query := `SELECT ` + petitionColumns + ` FROM petitions`
	args := []interface{}{}
	idx := 1
	if filter.State != nil {
		query += " WHERE state=$" + itoa(idx)
		args = append(args, *filter.State)
		idx++
	}
	if filter.Archived != nil {
		if *filter.Archived {
			query += addWhere(query) + " archived_at IS NOT NULL"
		} else {
			query += addWhere(query) + " archived_at IS NULL"
		}
	}
	query += " ORDER BY id DESC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)
	return r.queryPetitions(ctx, query, args...)
}

func (r *PetitionRepository) UpdateModeration(ctx context.Context, p *petition.Petition, from petition.State) error {
	var code, details *string
	if p.Rejection != nil {
		code = &p.Rejection.Code
		details = p.Rejection.Details
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE petitions
		SET state=$1, moderated_at=$2, opened_at=$3, closed_at=$4, referred_at=$5, rejected_at=$6,
			rejection_code=$7, rejection_details=$8, completed_at=$9, archived_at=$10, updated_at=$11
		WHERE id=$12 AND state=$13
	`, p.State, p.ModeratedAt, p.OpenedAt, p.ClosedAt, p.ReferredAt, p.RejectedAt,
		code, details, p.CompletedAt, p.ArchivedAt, p.UpdatedAt, p.ID, from)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, p.ID)
	}
	return nil
}

// UpdateDebate persists the debate fields when the stored debate state still equals from.
// The counter statements move debate_state between pending and awaiting, so a stale read
// becomes a conflict instead of overwriting a retraction.
func (r *PetitionRepository) UpdateDebate(ctx context.Context, p *petition.Petition, from petition.DebateState) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE petitions SET debate_state=$1, debate_scheduled_on=$2, updated_at=$3
		WHERE id=$4 AND debate_state=$5
	`, p.DebateState, p.DebateScheduledOn, p.UpdatedAt, p.ID, from)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, p.ID)
	}
	return nil
}

func (r *PetitionRepository) missOrConflict(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM petitions WHERE id=$1)`, id).Scan(&exists); err != nil {
		return translate(err)
	}
	if !exists {
		return petition.ErrNotFound
	}
	return fmt.Errorf("%w: petition was changed by someone else", petition.ErrInvalidTransition)
}

// IncrementSignatureCount adds every signature validated in (last_signed_at, now] and
// applies the threshold transitions in the same statement. The row lock taken by the
// first CTE makes concurrent callers see each other's last_signed_at, so a range is
// never counted twice.
func (r *PetitionRepository) IncrementSignatureCount(ctx context.Context, id int64, now time.Time, thresholds petition.Thresholds) (*petition.CountUpdate, error) {
	row := r.db.QueryRow(ctx, `
		WITH locked AS (
			SELECT id, last_signed_at FROM petitions WHERE id = $1 FOR UPDATE
		), delta AS (
			SELECT locked.id, COUNT(s.id)::int AS n
			FROM locked
			LEFT JOIN signatures s ON s.petition_id = locked.id
				AND s.state = 'validated'
				AND s.validated_at > COALESCE(locked.last_signed_at, '-infinity'::timestamptz)
				AND s.validated_at <= $2::timestamptz
			GROUP BY locked.id
		)
		UPDATE petitions p SET
			signature_count = p.signature_count + d.n,
			last_signed_at = $2::timestamptz,
			state = CASE
				WHEN p.state IN ('pending', 'validated') AND p.signature_count + d.n >= $3::int THEN 'sponsored'
				WHEN p.state = 'pending' THEN 'validated'
				ELSE p.state
			END,
			moderation_threshold_reached_at = CASE
				WHEN p.moderation_threshold_reached_at IS NULL AND p.signature_count + d.n >= $3::int THEN $2::timestamptz
				ELSE p.moderation_threshold_reached_at
			END,
			referral_threshold_reached_at = CASE
				WHEN p.referral_threshold_reached_at IS NULL AND p.signature_count + d.n >= p.threshold_for_referral THEN $2::timestamptz
				ELSE p.referral_threshold_reached_at
			END,
			debate_threshold_reached_at = CASE
				WHEN p.debate_threshold_reached_at IS NULL AND p.signature_count + d.n >= p.threshold_for_debate THEN $2::timestamptz
				ELSE p.debate_threshold_reached_at
			END,
			debate_state = CASE
				WHEN p.debate_state = 'pending' AND p.signature_count + d.n >= p.threshold_for_debate THEN 'awaiting'
				ELSE p.debate_state
			END,
			updated_at = $2::timestamptz
		FROM delta d
		WHERE p.id = d.id AND d.n > 0
		RETURNING d.n, `+countUpdateColumns+`
	`, id, now, thresholds.Moderation)
	return scanCountUpdate(row, id)
}

// DecrementSignatureCount removes one signature, never going below one, and retracts the
// referral and debate stamps when the new count drops under their thresholds.
func (r *PetitionRepository) DecrementSignatureCount(ctx context.Context, id int64, now time.Time) (*petition.CountUpdate, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE petitions p SET
			signature_count = p.signature_count - 1,
			referral_threshold_reached_at = CASE
				WHEN p.signature_count - 1 < p.threshold_for_referral THEN NULL
				ELSE p.referral_threshold_reached_at
			END,
			debate_threshold_reached_at = CASE
				WHEN p.signature_count - 1 < p.threshold_for_debate THEN NULL
				ELSE p.debate_threshold_reached_at
			END,
			debate_state = CASE
				WHEN p.debate_state = 'awaiting' AND p.signature_count - 1 < p.threshold_for_debate THEN 'pending'
				ELSE p.debate_state
			END,
			updated_at = $2
		WHERE p.id = $1 AND p.signature_count > 1
		RETURNING -1, `+countUpdateColumns+`
	`, id, now)
	return scanCountUpdate(row, id)
}

func (r *PetitionRepository) MarkSignatureCountResetting(ctx context.Context, id int64, now time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE petitions SET signature_count_reset_at=$2, updated_at=$2 WHERE id=$1`, id, now)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return petition.ErrNotFound
	}
	return nil
}

// ResetSignatureCount replaces the counter with an exact count, clears the resetting
// marker and re-derives the referral and debate stamps from the new value.
func (r *PetitionRepository) ResetSignatureCount(ctx context.Context, id int64, now time.Time) (*petition.CountUpdate, error) {
	row := r.db.QueryRow(ctx, `
		WITH old AS (
			SELECT id, signature_count FROM petitions WHERE id = $1 FOR UPDATE
		), exact AS (
			SELECT COUNT(*)::int AS n, MAX(validated_at) AS last
			FROM signatures WHERE petition_id = $1 AND state = 'validated'
		)
		UPDATE petitions p SET
			signature_count = e.n,
			last_signed_at = NULLIF(GREATEST(
				COALESCE(p.last_signed_at, '-infinity'::timestamptz),
				COALESCE(e.last, '-infinity'::timestamptz)
			), '-infinity'::timestamptz),
			referral_threshold_reached_at = CASE
				WHEN e.n < p.threshold_for_referral THEN NULL
				ELSE COALESCE(p.referral_threshold_reached_at, $2::timestamptz)
			END,
			debate_threshold_reached_at = CASE
				WHEN e.n < p.threshold_for_debate THEN NULL
				ELSE COALESCE(p.debate_threshold_reached_at, $2::timestamptz)
			END,
			debate_state = CASE
				WHEN p.debate_state = 'awaiting' AND e.n < p.threshold_for_debate THEN 'pending'
				WHEN p.debate_state = 'pending' AND e.n >= p.threshold_for_debate THEN 'awaiting'
				ELSE p.debate_state
			END,
			signature_count_reset_at = NULL,
			signature_count_validated_at = $2::timestamptz,
			updated_at = $2::timestamptz
		FROM old o, exact e
		WHERE p.id = o.id
		RETURNING e.n - o.signature_count, `+countUpdateColumns+`
	`, id, now)
	u, err := scanCountUpdate(row, id)
	if err != nil {
		return nil, err
	}
	if u.State == "" {
		return nil, petition.ErrNotFound
	}
	return u, nil
}

// IDsWithInvalidSignatureCounts lists petitions whose counter disagrees with the exact
// count, plus any left with a resetting marker by an interrupted reset.
func (r *PetitionRepository) IDsWithInvalidSignatureCounts(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id FROM petitions p
		WHERE p.signature_count_reset_at IS NOT NULL
			OR p.signature_count <> (
				SELECT COUNT(*) FROM signatures s WHERE s.petition_id = p.id AND s.state = 'validated'
			)
		ORDER BY p.signature_count_validated_at NULLS FIRST, p.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PetitionRepository) ListDueForClosing(ctx context.Context, now time.Time, limit int) ([]*petition.Petition, error) {
	return r.queryPetitions(ctx, `
		SELECT `+petitionColumns+` FROM petitions
		WHERE state = 'open' AND closed_at <= $1
		ORDER BY closed_at, id LIMIT $2
	`, now, limit)
}

func (r *PetitionRepository) ListDueForReferral(ctx context.Context, closedBefore time.Time, limit int) ([]*petition.Petition, error) {
	return r.queryPetitions(ctx, `
		SELECT `+petitionColumns+` FROM petitions
		WHERE state = 'closed' AND closed_at <= $1
		ORDER BY closed_at, id LIMIT $2
	`, closedBefore, limit)
}

func (r *PetitionRepository) queryPetitions(ctx context.Context, query string, args ...interface{}) ([]*petition.Petition, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []*petition.Petition
	for rows.Next() {
		p, err := scanPetition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPetition(row pgx.Row) (*petition.Petition, error) {
	var p petition.Petition
	var translations []byte
	var code, details *string
	if err := row.Scan(&p.ID, &translations, &p.State, &p.DebateState, &p.SignatureCount, &p.LastSignedAt,
		&p.ModerationThresholdReachedAt, &p.ReferralThresholdReachedAt, &p.DebateThresholdReachedAt,
		&p.ThresholdForReferral, &p.ThresholdForDebate, &p.SignatureCountResetAt, &p.SignatureCountValidatedAt,
		&p.ModeratedAt, &p.OpenedAt, &p.ClosedAt, &p.ReferredAt, &p.RejectedAt, &code, &details,
		&p.CompletedAt, &p.ArchivedAt, &p.DebateScheduledOn, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, translate(err)
	}
	if len(translations) > 0 {
		if err := json.Unmarshal(translations, &p.Translations); err != nil {
			return nil, fmt.Errorf("decode translations: %w", err)
		}
	}
	if code != nil {
		p.Rejection = &petition.Rejection{Code: *code, Details: details}
	}
	return &p, nil
}

// scanCountUpdate reads a counter update; no row means nothing was written.
func scanCountUpdate(row pgx.Row, id int64) (*petition.CountUpdate, error) {
	u := petition.CountUpdate{PetitionID: id}
	if err := row.Scan(&u.Delta, &u.PetitionID, &u.SignatureCount, &u.State, &u.DebateState,
		&u.ModerationThresholdReachedAt, &u.ReferralThresholdReachedAt, &u.DebateThresholdReachedAt); err != nil {
		if err == pgx.ErrNoRows {
			return &petition.CountUpdate{PetitionID: id}, nil
		}
		return nil, translate(err)
	}
	return &u, nil
}
