package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/petition-hub/petition-hub/internal/domain/invalidation"
)

const invalidationColumns = `id, summary, details, petition_id, name, postcode, ip_address, email, domain,
	constituency_id, location_code, created_after, created_before, matching_count, invalidated_count,
	counted_at, enqueued_at, started_at, cancelled_at, completed_at, created_at, updated_at`

// InvalidationRepository implements invalidation.Repository.
type InvalidationRepository struct {
	db DB
}

func NewInvalidationRepository(db DB) *InvalidationRepository {
	return &InvalidationRepository{db: db}
}

func (r *InvalidationRepository) Create(ctx context.Context, inv *invalidation.Invalidation) error {
	f := inv.Filter
	row := r.db.QueryRow(ctx, `
		INSERT INTO invalidations
		(summary, details, petition_id, name, postcode, ip_address, email, domain, constituency_id, location_code,
		 created_after, created_before, matching_count, invalidated_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING id
	`, inv.Summary, inv.Details, f.PetitionID, f.Name, f.Postcode, f.IPAddress, f.Email, f.Domain,
		f.ConstituencyID, f.LocationCode, f.CreatedAfter, f.CreatedBefore, inv.MatchingCount, inv.InvalidatedCount,
		inv.CreatedAt, inv.UpdatedAt)
	return translate(row.Scan(&inv.ID))
}

func (r *InvalidationRepository) GetByID(ctx context.Context, id int64) (*invalidation.Invalidation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invalidationColumns+` FROM invalidations WHERE id=$1`, id)
	return scanInvalidation(row)
}

func (r *InvalidationRepository) Lock(ctx context.Context, id int64) (*invalidation.Invalidation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invalidationColumns+` FROM invalidations WHERE id=$1 FOR UPDATE`, id)
	return scanInvalidation(row)
}

func (r *InvalidationRepository) List(ctx context.Context, limit, offset int) ([]*invalidation.Invalidation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+invalidationColumns+` FROM invalidations ORDER BY id DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []*invalidation.Invalidation
	for rows.Next() {
		inv, err := scanInvalidation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Update writes everything but invalidated_count, which only moves through
// IncrementInvalidatedCount.
func (r *InvalidationRepository) Update(ctx context.Context, inv *invalidation.Invalidation) error {
	f := inv.Filter
	tag, err := r.db.Exec(ctx, `
		UPDATE invalidations
		SET summary=$1, details=$2, petition_id=$3, name=$4, postcode=$5, ip_address=$6, email=$7, domain=$8,
			constituency_id=$9, location_code=$10, created_after=$11, created_before=$12, matching_count=$13,
			counted_at=$14, enqueued_at=$15, started_at=$16, cancelled_at=$17, completed_at=$18, updated_at=$19
		WHERE id=$20
	`, inv.Summary, inv.Details, f.PetitionID, f.Name, f.Postcode, f.IPAddress, f.Email, f.Domain,
		f.ConstituencyID, f.LocationCode, f.CreatedAfter, f.CreatedBefore, inv.MatchingCount,
		inv.CountedAt, inv.EnqueuedAt, inv.StartedAt, inv.CancelledAt, inv.CompletedAt, inv.UpdatedAt, inv.ID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return invalidation.ErrNotFound
	}
	return nil
}

func (r *InvalidationRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM invalidations WHERE id=$1`, id)
	return translate(err)
}

func (r *InvalidationRepository) IncrementInvalidatedCount(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE invalidations SET invalidated_count = invalidated_count + 1, updated_at = NOW() WHERE id=$1
	`, id)
	return translate(err)
}

func (r *InvalidationRepository) CountMatching(ctx context.Context, f invalidation.Filter) (int, error) {
	where, args, _ := matchingWhere(f, 1)
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM signatures`+where, args...).Scan(&count); err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func (r *InvalidationRepository) ListMatchingIDs(ctx context.Context, f invalidation.Filter, afterID int64, limit int) ([]int64, error) {
	where, args, idx := matchingWhere(f, 1)
	query := `SELECT id FROM signatures` + where + ` AND id > $` + itoa(idx) + ` ORDER BY id LIMIT $` + itoa(idx+1)
	args = append(args, afterID, limit)

	rows, err := r.db.Query(ctx, query, args...)
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

// matchingWhere builds the predicate for signatures an invalidation can still act on.
// Only pending and validated signatures qualify; everything else is already out of the
// count.
func matchingWhere(f invalidation.Filter, idx int) (string, []any, int) {
	query := " WHERE state IN ('pending', 'validated')"
	args := []any{}
	eq := func(column string, v any) {
		query += " AND " + column + " = $" + itoa(idx)
		args = append(args, v)
		idx++
	}
	like := func(column, v string) {
		if invalidation.Wildcard(v) {
			query += " AND " + column + " LIKE $" + itoa(idx)
		} else {
			query += " AND " + column + " = $" + itoa(idx)
		}
		args = append(args, v)
		idx++
	}

	if f.PetitionID != nil {
		eq("petition_id", *f.PetitionID)
	}
	if f.Name != nil {
		query += " AND lower(name) = lower($" + itoa(idx) + ")"
		args = append(args, *f.Name)
		idx++
	}
	if f.Postcode != nil {
		eq("postcode", *f.Postcode)
	}
	if f.IPAddress != nil {
		eq("ip_address", *f.IPAddress)
	}
	if f.Email != nil {
		like("email", *f.Email)
	}
	if f.Domain != nil {
		like("split_part(email, '@', 2)", *f.Domain)
	}
	if f.ConstituencyID != nil {
		eq("constituency_id", *f.ConstituencyID)
	}
	if f.LocationCode != nil {
		eq("location_code", *f.LocationCode)
	}
	if f.CreatedAfter != nil {
		query += " AND created_at >= $" + itoa(idx)
		args = append(args, *f.CreatedAfter)
		idx++
	}
	if f.CreatedBefore != nil {
		query += " AND created_at < $" + itoa(idx)
		args = append(args, *f.CreatedBefore)
		idx++
	}
	return query, args, idx
}

func scanInvalidation(row pgx.Row) (*invalidation.Invalidation, error) {
	var inv invalidation.Invalidation
	f := &inv.Filter
	if err := row.Scan(&inv.ID, &inv.Summary, &inv.Details, &f.PetitionID, &f.Name, &f.Postcode, &f.IPAddress,
		&f.Email, &f.Domain, &f.ConstituencyID, &f.LocationCode, &f.CreatedAfter, &f.CreatedBefore,
		&inv.MatchingCount, &inv.InvalidatedCount, &inv.CountedAt, &inv.EnqueuedAt, &inv.StartedAt,
		&inv.CancelledAt, &inv.CompletedAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, translate(err)
	}
	return &inv, nil
}
