package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/petition-hub/petition-hub/internal/domain/audit"
)

// AuditRepository implements audit.Repository.
type AuditRepository struct {
	db DB
}

func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *audit.AuditLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_logs
		(audit_id, entity_type, entity_id, action, actor, old_values, new_values, reason, risk_level, signature, trace_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, entry.AuditID, entry.EntityType, entry.EntityID, entry.Action, entry.Actor, entry.OldValues, entry.NewValues,
		entry.Reason, entry.RiskLevel, entry.Signature, entry.TraceID, entry.CreatedAt)
	return translate(err)
}

func (r *AuditRepository) GetByEntityID(ctx context.Context, entityType audit.EntityType, entityID string, limit int) ([]*audit.AuditLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, audit_id, entity_type, entity_id, action, actor, old_values, new_values, reason, risk_level, signature, trace_id, created_at
		FROM audit_logs WHERE entity_type=$1 AND entity_id=$2 ORDER BY created_at DESC, id DESC LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var logs []*audit.AuditLog
	for rows.Next() {
		log, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanAudit(row pgx.Row) (*audit.AuditLog, error) {
	var log audit.AuditLog
	var oldValues, newValues []byte
	if err := row.Scan(&log.ID, &log.AuditID, &log.EntityType, &log.EntityID, &log.Action, &log.Actor, &oldValues,
		&newValues, &log.Reason, &log.RiskLevel, &log.Signature, &log.TraceID, &log.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	log.OldValues = oldValues
	log.NewValues = newValues
	return &log, nil
}
