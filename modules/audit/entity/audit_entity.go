package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions emitted by the calendar sync engine.
const (
	ActionCalendarConnected    = "calendar.connected"
	ActionCalendarDisconnected = "calendar.disconnected"
	ActionCalendarSynced       = "calendar.synced"
)

// AuditLog records one state-changing action.
type AuditLog struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	UserID       uuid.UUID       `db:"user_id" json:"user_id"`
	Action       string          `db:"action" json:"action"`
	ResourceType string          `db:"resource_type" json:"resource_type"`
	ResourceID   string          `db:"resource_id" json:"resource_id"`
	Metadata     json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
