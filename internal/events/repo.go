package events

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fedeegea/baggage-backend/pkg/db/models"
	"github.com/fedeegea/baggage-backend/pkg/enums"
	pkgerrors "github.com/fedeegea/baggage-backend/pkg/errors"
)

// Repository is the durable append-only event store. Writes are serialized at
// the storage layer; readers see a consistent snapshot per query.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns an event store bound to the provided database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Append durably persists one event and returns it with its assigned sequence
// id. Duplicate item/kind pairs are valid data (real-world double scans), so
// no uniqueness is enforced.
func (r *Repository) Append(ctx context.Context, event Event) (Event, error) {
	if err := validateForAppend(event); err != nil {
		return Event{}, err
	}
	row := toModel(event)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Event{}, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "appending event")
	}
	return fromModel(row), nil
}

func validateForAppend(event Event) error {
	if event.ItemID == "" {
		return pkgerrors.New(pkgerrors.CodeStoreMalformed, "item id is required")
	}
	if !event.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeStoreMalformed, "event kind is required")
	}
	if event.OccurredAt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeStoreMalformed, "occurred_at is required")
	}
	return nil
}

// Recent returns the most recent events across all items, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Event, error) {
	var rows []models.BaggageEvent
	err := r.db.WithContext(ctx).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "listing recent events")
	}
	return fromModels(rows), nil
}

// History returns every event for one item in chronological order; ties on
// occurred_at keep insertion order.
func (r *Repository) History(ctx context.Context, itemID string) ([]Event, error) {
	var rows []models.BaggageEvent
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("occurred_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "loading item history")
	}
	return fromModels(rows), nil
}

// LatestPerItem returns one row per distinct item representing its most recent
// event, newest items first. Ties on occurred_at resolve to the highest
// sequence id so results stay deterministic. With excludeTerminal only items
// still in flight are returned.
func (r *Repository) LatestPerItem(ctx context.Context, limit int, excludeTerminal bool) ([]ProjectedStatus, error) {
	query := `
SELECT e.item_id, e.kind AS state, e.origin, e.destination, e.weight, e.occurred_at AS last_event_at
FROM baggage_events e
WHERE e.id = (
    SELECT e2.id FROM baggage_events e2
    WHERE e2.item_id = e.item_id
    ORDER BY e2.occurred_at DESC, e2.id DESC
    LIMIT 1
)`
	args := []any{}
	if excludeTerminal {
		query += ` AND e.kind NOT IN (?, ?)`
		args = append(args, enums.KindDelivered, enums.KindLost)
	}
	query += ` ORDER BY e.occurred_at DESC, e.id DESC LIMIT ?`
	args = append(args, limit)

	var rows []struct {
		ItemID      string
		State       enums.EventKind
		Origin      string
		Destination string
		Weight      float64
		LastEventAt time.Time
	}
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "listing latest per item")
	}

	statuses := make([]ProjectedStatus, 0, len(rows))
	for _, row := range rows {
		statuses = append(statuses, ProjectedStatus{
			ItemID:      row.ItemID,
			State:       row.State,
			Origin:      row.Origin,
			Destination: row.Destination,
			Weight:      row.Weight,
			LastEventAt: row.LastEventAt,
		})
	}
	return statuses, nil
}

// CountsByKind returns the number of stored events per kind.
func (r *Repository) CountsByKind(ctx context.Context) (map[enums.EventKind]int64, error) {
	var rows []struct {
		Kind  enums.EventKind
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.BaggageEvent{}).
		Select("kind, COUNT(*) AS total").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "counting events by kind")
	}
	counts := make(map[enums.EventKind]int64, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Total
	}
	return counts, nil
}

// DistinctItemCount returns how many distinct items have at least one event.
func (r *Repository) DistinctItemCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BaggageEvent{}).
		Distinct("item_id").
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "counting distinct items")
	}
	return count, nil
}

// CountSince returns how many events occurred within the trailing window.
func (r *Repository) CountSince(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BaggageEvent{}).
		Where("occurred_at > ?", cutoff).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "counting recent events")
	}
	return count, nil
}

func fromModels(rows []models.BaggageEvent) []Event {
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out
}
