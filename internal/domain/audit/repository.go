package audit

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import "context"

// Repository defines audit log persistence.
type Repository interface {
	Create(ctx context.Context, entry *AuditLog) error
	GetByEntityID(ctx context.Context, entityType EntityType, entityID string, limit int) ([]*AuditLog, error)
}
