package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"familycal/core/database"
	"familycal/modules/event/entity"
)

type EventRepository interface {
	Create(ctx context.Context, event *entity.Event) (*entity.Event, error)
	Update(ctx context.Context, event *entity.Event) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Event, error)
	FindByFamilyID(ctx context.Context, familyID uuid.UUID) ([]entity.Event, error)

	// FindSyncedByCalendarID lists the events a previous reconciliation pass
	// created for one connection.
	FindSyncedByCalendarID(ctx context.Context, calendarID uuid.UUID) ([]entity.Event, error)
	// DeleteByCalendarID removes every synced event tied to a connection.
	DeleteByCalendarID(ctx context.Context, calendarID uuid.UUID) error
}

type eventRepository struct {
	db database.IDatabase
}

func NewEventRepository(db database.IDatabase) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *entity.Event) (*entity.Event, error) {
	query := `
		INSERT INTO events (family_id, title, description, location, start_time, end_time, all_day, event_type, is_synced, external_calendar_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		event.FamilyID, event.Title, event.Description, event.Location,
		event.StartTime, event.EndTime, event.AllDay, event.EventType,
		event.IsSynced, event.ExternalCalendarID, event.CreatedBy,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)

	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *eventRepository) Update(ctx context.Context, event *entity.Event) error {
	query := `
		UPDATE events
		SET title = $1, description = $2, location = $3, start_time = $4, end_time = $5, all_day = $6, updated_at = NOW()
		WHERE id = $7
	`
	return r.db.ExecContext(ctx, query,
		event.Title, event.Description, event.Location,
		event.StartTime, event.EndTime, event.AllDay, event.ID,
	)
}

func (r *eventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM events WHERE id = $1`
	return r.db.ExecContext(ctx, query, id)
}

func (r *eventRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Event, error) {
	query := `
		SELECT id, family_id, title, description, location, start_time, end_time, all_day, event_type, is_synced, external_calendar_id, created_by, created_at, updated_at
		FROM events
		WHERE id = $1
	`
	var event entity.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) FindByFamilyID(ctx context.Context, familyID uuid.UUID) ([]entity.Event, error) {
	query := `
		SELECT id, family_id, title, description, location, start_time, end_time, all_day, event_type, is_synced, external_calendar_id, created_by, created_at, updated_at
		FROM events
		WHERE family_id = $1
		ORDER BY start_time ASC
	`
	var events []entity.Event
	if err := r.db.SelectContext(ctx, &events, query, familyID); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) FindSyncedByCalendarID(ctx context.Context, calendarID uuid.UUID) ([]entity.Event, error) {
	query := `
		SELECT id, family_id, title, description, location, start_time, end_time, all_day, event_type, is_synced, external_calendar_id, created_by, created_at, updated_at
		FROM events
		WHERE is_synced = true AND external_calendar_id = $1
		ORDER BY start_time ASC
	`
	var events []entity.Event
	if err := r.db.SelectContext(ctx, &events, query, calendarID); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) DeleteByCalendarID(ctx context.Context, calendarID uuid.UUID) error {
	query := `DELETE FROM events WHERE is_synced = true AND external_calendar_id = $1`
	return r.db.ExecContext(ctx, query, calendarID)
}
