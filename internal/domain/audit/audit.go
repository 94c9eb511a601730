package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType represents the type of entity being audited
type EntityType string

const (
	EntityTypePetition     EntityType = "PETITION"
	EntityTypeSignature    EntityType = "SIGNATURE"
	EntityTypeInvalidation EntityType = "INVALIDATION"
	EntityTypeJournal      EntityType = "JOURNAL"
)

// Action represents the type of action being audited
type Action string

const (
	ActionCreate     Action = "CREATE"
	ActionUpdate     Action = "UPDATE"
	ActionDelete     Action = "DELETE"
	ActionFlag       Action = "FLAG"
	ActionUnflag     Action = "UNFLAG"
	ActionPublish    Action = "PUBLISH"
	ActionReject     Action = "REJECT"
	ActionClose      Action = "CLOSE"
	ActionRefer      Action = "REFER"
	ActionComplete   Action = "COMPLETE"
	ActionArchive    Action = "ARCHIVE"
	ActionResetCount Action = "RESET_COUNT"
	ActionInvalidate Action = "INVALIDATE"
	ActionStart      Action = "START"
	ActionCancel     Action = "CANCEL"
	ActionAnonymize  Action = "ANONYMIZE"
)

// RiskLevel represents the risk classification of an operation
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID         int64           `json:"id"`
	AuditID    uuid.UUID       `json:"auditId"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     Action          `json:"action"`
	Actor      string          `json:"actor"`
	OldValues  json.RawMessage `json:"oldValues,omitempty"`
	NewValues  json.RawMessage `json:"newValues,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	RiskLevel  RiskLevel       `json:"riskLevel"`
	Signature  []byte          `json:"signature,omitempty"`
	TraceID    string          `json:"traceId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AuditEntry is the input for creating audit logs
type AuditEntry struct {
	EntityType EntityType
	EntityID   string
	Action     Action
	Actor      string
	OldValues  interface{}
	NewValues  interface{}
	Reason     string
	TraceID    string
}

// DetermineRiskLevel classifies an operation.
func DetermineRiskLevel(entityType EntityType, action Action) RiskLevel {
	switch action {
	case ActionDelete, ActionInvalidate, ActionAnonymize:
		return RiskLevelHigh
	case ActionStart:
		if entityType == EntityTypeInvalidation {
			return RiskLevelHigh
		}
	case ActionReject, ActionResetCount, ActionPublish:
		return RiskLevelMedium
	}
	return RiskLevelLow
}

// NewAuditLog creates a new AuditLog from an AuditEntry
func NewAuditLog(entry *AuditEntry) (*AuditLog, error) {
	log := &AuditLog{
		AuditID:    uuid.New(),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Actor:      entry.Actor,
		Reason:     entry.Reason,
		TraceID:    entry.TraceID,
		RiskLevel:  DetermineRiskLevel(entry.EntityType, entry.Action),
		CreatedAt:  time.Now().UTC(),
	}

	if entry.OldValues != nil {
		data, err := json.Marshal(entry.OldValues)
		if err != nil {
			return nil, err
		}
		log.OldValues = data
	}

	if entry.NewValues != nil {
		data, err := json.Marshal(entry.NewValues)
		if err != nil {
			return nil, err
		}
		log.NewValues = data
	}

	return log, nil
}
