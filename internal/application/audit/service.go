package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petition-hub/petition-hub/internal/domain/audit"
)

const defaultHistoryLimit = 50

// Service handles audit log operations
type Service struct {
	repo    audit.Repository
	logger  zerolog.Logger
	signKey []byte
	pending sync.WaitGroup
}

// NewService creates a new audit service
func NewService(repo audit.Repository, logger zerolog.Logger, signKey []byte) *Service {
	return &Service{
		repo:    repo,
		signKey: signKey,
		logger:  logger.With().Str("service", "audit").Logger(),
	}
}

// Log creates a new audit log entry asynchronously. Failures are logged, never returned.
func (s *Service) Log(entry *audit.AuditEntry) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.LogSync(context.Background(), entry); err != nil {
			s.logger.Error().Err(err).
				Str("entity_type", string(entry.EntityType)).
				Str("entity_id", entry.EntityID).
				Str("action", string(entry.Action)).
				Msg("failed to create audit log")
		}
	}()
}

// Wait blocks until every entry passed to Log has been written.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogSync creates a new audit log entry synchronously
func (s *Service) LogSync(ctx context.Context, entry *audit.AuditEntry) error {
	auditLog, err := audit.NewAuditLog(entry)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	if len(s.signKey) > 0 {
		sig, err := audit.SignAuditLog(auditLog, s.signKey)
		if err != nil {
			return fmt.Errorf("failed to sign audit log: %w", err)
		}
		auditLog.Signature = sig
	}

	if err := s.repo.Create(ctx, auditLog); err != nil {
		return fmt.Errorf("failed to save audit log: %w", err)
	}

	s.logger.Debug().
		Str("audit_id", auditLog.AuditID.String()).
		Str("entity_type", string(auditLog.EntityType)).
		Str("entity_id", auditLog.EntityID).
		Str("action", string(auditLog.Action)).
		Str("actor", auditLog.Actor).
		Str("risk_level", string(auditLog.RiskLevel)).
		Msg("audit log created")

	if auditLog.RiskLevel == audit.RiskLevelHigh {
		s.logger.Warn().
			Str("audit_id", auditLog.AuditID.String()).
			Str("entity_type", string(auditLog.EntityType)).
			Str("entity_id", auditLog.EntityID).
			Str("action", string(auditLog.Action)).
			Str("actor", auditLog.Actor).
			Msg("high-risk operation recorded")
	}

	return nil
}

// History returns the most recent audit entries of one entity, newest first.
func (s *Service) History(ctx context.Context, entityType audit.EntityType, entityID string, limit int) ([]*audit.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}
	logs, err := s.repo.GetByEntityID(ctx, entityType, entityID, limit)
	if err != nil {
		s.logger.Error().Err(err).
			Str("entity_type", string(entityType)).
			Str("entity_id", entityID).
			Msg("failed to get entity history")
		return nil, fmt.Errorf("failed to get entity history: %w", err)
	}
	return logs, nil
}

// VerifyResult reports whether a stored entry still matches its signature.
type VerifyResult struct {
	AuditID  string `json:"auditId"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// Verify checks the signatures of an entity's history against the signing key.
func (s *Service) Verify(ctx context.Context, entityType audit.EntityType, entityID string) ([]VerifyResult, error) {
	logs, err := s.History(ctx, entityType, entityID, 200)
	if err != nil {
		return nil, err
	}
	results := make([]VerifyResult, 0, len(logs))
	for _, l := range logs {
		r := VerifyResult{AuditID: l.AuditID.String()}
		switch {
		case len(s.signKey) == 0:
			r.Message = "Audit signing is disabled"
		case len(l.Signature) == 0:
			r.Message = "Audit log is unsigned"
		default:
			ok, err := audit.VerifyAuditLog(l, s.signKey)
			if err != nil {
				return nil, fmt.Errorf("failed to verify audit log: %w", err)
			}
			r.Verified = ok
			if ok {
				r.Message = "Audit log integrity verified"
			} else {
				r.Message = "Audit log signature mismatch"
				s.logger.Warn().Str("audit_id", r.AuditID).Msg("audit log signature verification failed")
			}
		}
		results = append(results, r)
	}
	return results, nil
}
