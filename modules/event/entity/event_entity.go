package entity

import (
	"time"

	"github.com/google/uuid"

	"familycal/core/entity"
)

// Event types. Elastic events don't block the family schedule; synced events
// imported from external calendars are always created elastic.
const (
	EventTypeFixed   = "fixed"
	EventTypeElastic = "elastic"
)

// Event is a calendar event owned by a family. Externally synced events carry
// IsSynced=true and the id of the connection that produced them.
type Event struct {
	entity.BaseEntity
	FamilyID           uuid.UUID  `db:"family_id" json:"family_id"`
	Title              string     `db:"title" json:"title"`
	Description        string     `db:"description" json:"description"`
	Location           string     `db:"location" json:"location"`
	StartTime          time.Time  `db:"start_time" json:"start_time"`
	EndTime            time.Time  `db:"end_time" json:"end_time"`
	AllDay             bool       `db:"all_day" json:"all_day"`
	EventType          string     `db:"event_type" json:"event_type"`
	IsSynced           bool       `db:"is_synced" json:"is_synced"`
	ExternalCalendarID *uuid.UUID `db:"external_calendar_id" json:"external_calendar_id,omitempty"`
	CreatedBy          *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
}

func (Event) TableName() string {
	return "events"
}
