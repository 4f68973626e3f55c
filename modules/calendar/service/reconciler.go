package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"familycal/core/logger"
	"familycal/modules/calendar/dto"
	eventEntity "familycal/modules/event/entity"
	eventRepository "familycal/modules/event/repository"
)

// ReconcileStats counts the mutations of one reconciliation pass.
type ReconcileStats struct {
	Added   int
	Updated int
	Removed int
}

// Reconciler applies one connection's externally fetched events onto the
// family's stored synced events. Events are correlated by the content key
// (title, start, end) — no stable provider event id is assumed. Re-running a
// pass against the same external state converges to zero further mutations.
type Reconciler struct {
	events eventRepository.EventRepository
}

func NewReconciler(events eventRepository.EventRepository) *Reconciler {
	return &Reconciler{events: events}
}

// matchKey derives the correlation key for an event. A same-key collision
// where title or times still differ (sub-second drift survives the key's
// second granularity) resolves as an in-place update.
func matchKey(title string, start, end int64) string {
	return fmt.Sprintf("%s|%d|%d", title, start, end)
}

// Reconcile classifies each external event as new, unchanged or changed
// against the previously synced snapshot, creates/updates accordingly, and
// deletes synced events that no longer exist upstream. Only events tagged
// with this connection are ever touched; locally authored events are not in
// the snapshot and stay untouched by construction.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	familyID uuid.UUID,
	calendarID uuid.UUID,
	external []dto.ExternalEvent,
	existing []eventEntity.Event,
) (ReconcileStats, error) {
	var stats ReconcileStats

	// Index the previously synced events by content key. Entries left in the
	// map after the external pass had no upstream counterpart.
	unmatched := make(map[string]*eventEntity.Event, len(existing))
	for i := range existing {
		event := &existing[i]
		key := matchKey(event.Title, event.StartTime.UTC().Unix(), event.EndTime.UTC().Unix())
		unmatched[key] = event
	}

	for _, ext := range external {
		key := matchKey(ext.Title, ext.StartTime.UTC().Unix(), ext.EndTime.UTC().Unix())

		local, found := unmatched[key]
		if !found {
			event := &eventEntity.Event{
				FamilyID:           familyID,
				Title:              ext.Title,
				Description:        ext.Description,
				Location:           ext.Location,
				StartTime:          ext.StartTime,
				EndTime:            ext.EndTime,
				AllDay:             ext.AllDay,
				EventType:          eventEntity.EventTypeElastic,
				IsSynced:           true,
				ExternalCalendarID: &calendarID,
			}
			if _, err := r.events.Create(ctx, event); err != nil {
				return stats, fmt.Errorf("failed to create synced event %q: %w", ext.Title, err)
			}
			stats.Added++
			continue
		}

		// Matched: this local event is accounted for, never a deletion
		// candidate in this pass.
		delete(unmatched, key)

		if local.Title == ext.Title &&
			local.StartTime.UTC().Equal(ext.StartTime.UTC()) &&
			local.EndTime.UTC().Equal(ext.EndTime.UTC()) {
			continue
		}

		local.Title = ext.Title
		local.Description = ext.Description
		local.Location = ext.Location
		local.StartTime = ext.StartTime
		local.EndTime = ext.EndTime
		local.AllDay = ext.AllDay
		if err := r.events.Update(ctx, local); err != nil {
			return stats, fmt.Errorf("failed to update synced event %q: %w", ext.Title, err)
		}
		stats.Updated++
	}

	for key, leftover := range unmatched {
		if err := r.events.Delete(ctx, leftover.ID); err != nil {
			return stats, fmt.Errorf("failed to delete synced event %q: %w", leftover.Title, err)
		}
		logger.Debug("Reconciler:Reconcile:Removed", "key", key, "event_id", leftover.ID)
		stats.Removed++
	}

	return stats, nil
}
