package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/petition-hub/petition-hub/internal/domain/journal"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
)

// journalTable describes how one journal kind is laid out.
type journalTable struct {
	name string
	// value renders the natural key columns as journal.Key.Value.
	value string
	// match compares the key columns with $2 (and $3); keyArgs produces those args.
	match   string
	columns string
	keyArgs func(k journal.Key) ([]any, error)
	// rebuild selects (petition_id, key columns..., count, last) from validated signatures.
	rebuild string
}

var journalTables = map[journal.Kind]journalTable{
	journal.KindConstituency: {
		name:    "constituency_journals",
		value:   "constituency_id",
		match:   "constituency_id = $2",
		columns: "constituency_id",
		keyArgs: func(k journal.Key) ([]any, error) { return []any{k.Value}, nil },
		rebuild: `SELECT petition_id, constituency_id, COUNT(*), MAX(validated_at)
			FROM signatures WHERE state = 'validated' AND constituency_id IS NOT NULL
			GROUP BY petition_id, constituency_id`,
	},
	journal.KindCountry: {
		name:    "country_journals",
		value:   "location_code",
		match:   "location_code = $2",
		columns: "location_code",
		keyArgs: func(k journal.Key) ([]any, error) { return []any{k.Value}, nil },
		rebuild: `SELECT petition_id, location_code, COUNT(*), MAX(validated_at)
			FROM signatures WHERE state = 'validated'
			GROUP BY petition_id, location_code`,
	},
	journal.KindTrending: {
		name:    "trending_journals",
		value:   "to_char(date, 'YYYY-MM-DD') || 'T' || lpad(hour::text, 2, '0')",
		match:   "date = $2 AND hour = $3",
		columns: "date, hour",
		keyArgs: func(k journal.Key) ([]any, error) {
			hour, err := k.Hour()
			if err != nil {
				return nil, err
			}
			date := time.Date(hour.Year(), hour.Month(), hour.Day(), 0, 0, 0, 0, time.UTC)
			return []any{date, hour.Hour()}, nil
		},
		rebuild: `SELECT petition_id, (validated_at AT TIME ZONE 'UTC')::date,
				EXTRACT(HOUR FROM validated_at AT TIME ZONE 'UTC')::smallint, COUNT(*), MAX(validated_at)
			FROM signatures WHERE state = 'validated' AND validated_at IS NOT NULL
			GROUP BY 1, 2, 3`,
	},
}

func tableFor(kind journal.Kind) (journalTable, error) {
	t, ok := journalTables[kind]
	if !ok {
		return journalTable{}, fmt.Errorf("%w: %q", journal.ErrUnknownKind, kind)
	}
	return t, nil
}

// JournalRepository implements journal.Repository for every journal kind.
type JournalRepository struct {
	db      DB
	metrics *metrics.Metrics
}

func NewJournalRepository(db DB, m *metrics.Metrics) *JournalRepository {
	return &JournalRepository{db: db, metrics: m}
}

func (r *JournalRepository) Get(ctx context.Context, key journal.Key) (*journal.Journal, error) {
	t, err := tableFor(key.Kind)
	if err != nil {
		return nil, err
	}
	keyArgs, err := t.keyArgs(key)
	if err != nil {
		return nil, err
	}
	args := append([]any{key.PetitionID}, keyArgs...)
	row := r.db.QueryRow(ctx, `
		SELECT id, petition_id, `+t.value+`, signature_count, last_signed_at, created_at, updated_at
		FROM `+t.name+` WHERE petition_id = $1 AND `+t.match, args...)
	return scanJournal(row, key.Kind)
}

// FindOrCreate inserts inside a savepoint so a lost unique index race leaves the
// surrounding transaction usable, then re-reads the winner's row.
func (r *JournalRepository) FindOrCreate(ctx context.Context, key journal.Key) (*journal.Journal, error) {
	t, err := tableFor(key.Kind)
	if err != nil {
		return nil, err
	}
	keyArgs, err := t.keyArgs(key)
	if err != nil {
		return nil, err
	}
	placeholders := "$2"
	if len(keyArgs) == 2 {
		placeholders = "$2, $3"
	}
	insert := `INSERT INTO ` + t.name + ` (petition_id, ` + t.columns + `, signature_count)
		VALUES ($1, ` + placeholders + `, 0)
		RETURNING id, petition_id, ` + t.value + `, signature_count, last_signed_at, created_at, updated_at`
	args := append([]any{key.PetitionID}, keyArgs...)

	for {
		j, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if j != nil {
			return j, nil
		}

		j, err = r.insert(ctx, key.Kind, insert, args)
		if err == nil {
			return j, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		r.metrics.JournalCreateRetry()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (r *JournalRepository) insert(ctx context.Context, kind journal.Kind, query string, args []any) (*journal.Journal, error) {
	sp, err := r.db.Begin(ctx)
	if err != nil {
		return nil, translate(err)
	}
	defer func() { _ = sp.Rollback(ctx) }()

	j, err := scanJournal(sp.QueryRow(ctx, query, args...), kind)
	if err != nil {
		return nil, err
	}
	if err := sp.Commit(ctx); err != nil {
		return nil, translate(err)
	}
	return j, nil
}

func (r *JournalRepository) Increment(ctx context.Context, kind journal.Kind, id int64, now time.Time) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		UPDATE `+t.name+`
		SET signature_count = signature_count + 1, last_signed_at = $2, updated_at = $2
		WHERE id = $1
	`, id, now)
	return translate(err)
}

func (r *JournalRepository) Decrement(ctx context.Context, kind journal.Kind, id int64, now time.Time) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		UPDATE `+t.name+`
		SET signature_count = GREATEST(signature_count - 1, 0), updated_at = $2
		WHERE id = $1
	`, id, now)
	return translate(err)
}

// Reset rebuilds every row of kind in one transaction and returns the number of rows.
// Writers of that kind wait on the table lock until the rebuild commits.
func (r *JournalRepository) Reset(ctx context.Context, kind journal.Kind, now time.Time) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, translate(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `LOCK TABLE `+t.name+` IN EXCLUSIVE MODE`); err != nil {
		return 0, translate(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM `+t.name); err != nil {
		return 0, translate(err)
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO `+t.name+` (petition_id, `+t.columns+`, signature_count, last_signed_at, created_at, updated_at)
		SELECT rebuilt.*, $1::timestamptz, $1::timestamptz FROM (`+t.rebuild+`) AS rebuilt
	`, now)
	if err != nil {
		return 0, translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (r *JournalRepository) ListByPetition(ctx context.Context, kind journal.Kind, petitionID int64) ([]*journal.Journal, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, petition_id, `+t.value+`, signature_count, last_signed_at, created_at, updated_at
		FROM `+t.name+` WHERE petition_id = $1
		ORDER BY signature_count DESC, id
	`, petitionID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []*journal.Journal
	for rows.Next() {
		j, err := scanJournal(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJournal(row pgx.Row, kind journal.Kind) (*journal.Journal, error) {
	j := journal.Journal{Kind: kind}
	if err := row.Scan(&j.ID, &j.PetitionID, &j.Value, &j.SignatureCount, &j.LastSignedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, translate(err)
	}
	return &j, nil
}
