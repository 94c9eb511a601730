package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
)

// Transactor implements unitofwork.Transactor on a dedicated pooled connection.
type Transactor struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewTransactor(pool *pgxpool.Pool, m *metrics.Metrics, logger zerolog.Logger) *Transactor {
	return &Transactor{
		pool:    pool,
		metrics: m,
		logger:  logger.With().Str("component", "transactor").Logger(),
	}
}

// InTx runs fn in a transaction and commits when it returns nil. When the transaction
// was aborted underneath fn, the connection's prepared statements are dropped before it
// returns to the pool and the error wraps unitofwork.ErrTransactionAborted.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context, repos unitofwork.Repositories) error) error {
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return translate(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = fn(ctx, Repositories(tx, t.metrics))
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err == nil {
		return nil
	}

	err = translate(err)
	if errors.Is(err, unitofwork.ErrTransactionAborted) {
		_ = tx.Rollback(ctx)
		if derr := conn.Conn().DeallocateAll(ctx); derr != nil {
			t.logger.Warn().Err(derr).Msg("failed to deallocate prepared statements")
		}
	}
	return err
}

// Repositories binds every repository to db.
func Repositories(db DB, m *metrics.Metrics) unitofwork.Repositories {
	return unitofwork.Repositories{
		Petitions:     NewPetitionRepository(db),
		Signatures:    NewSignatureRepository(db),
		Journals:      NewJournalRepository(db, m),
		Invalidations: NewInvalidationRepository(db),
		Jobs:          NewJobQueue(db),
	}
}
