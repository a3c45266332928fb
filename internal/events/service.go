package events

import (
	"context"
	"fmt"
	"time"

	"github.com/fedeegea/baggage-backend/pkg/enums"
	"github.com/fedeegea/baggage-backend/pkg/logger"
)

const (
	// DefaultRecentLimit bounds the recent-events listing.
	DefaultRecentLimit = 100
	statsWindow        = 24 * time.Hour
)

// Publisher fans an event out to the bus. Publish failures are a separate
// failure domain from the durable append and must never fail a record call.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Service is the write and read surface over the event store. Record is the
// single entry point shared by the tracker loop and manual entry.
type Service struct {
	repo      *Repository
	publisher Publisher
	logg      *logger.Logger
}

// NewService builds the event service. The publisher is optional; without one
// events are persisted but not fanned out.
func NewService(repo *Repository, publisher Publisher, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("event repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, publisher: publisher, logg: logg}, nil
}

// Record durably appends the event, then fans it out asynchronously. The
// publish runs on its own goroutine so a slow broker never blocks the caller:
// persistence is the source of truth and the bus has its own failure domain.
// A publish failure is logged and swallowed.
func (s *Service) Record(ctx context.Context, event Event) (Event, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	stored, err := s.repo.Append(ctx, event)
	if err != nil {
		return Event{}, err
	}

	if s.publisher != nil {
		// Detach from the caller's cancellation; the publisher applies its
		// own ack timeout.
		go s.publish(context.WithoutCancel(ctx), stored)
	}

	return stored, nil
}

func (s *Service) publish(ctx context.Context, stored Event) {
	if pubErr := s.publisher.Publish(ctx, stored); pubErr != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"item_id": stored.ItemID,
			"kind":    stored.Kind,
		})
		s.logg.Warn(s.logg.WithField(logCtx, "error", pubErr.Error()), "event publish failed, stored copy remains authoritative")
	}
}

// Recent returns the newest events across all items.
func (s *Service) Recent(ctx context.Context, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	records := make([]EventRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, newEventRecord(row))
	}
	return records, nil
}

// History returns one item's full event trail in chronological order.
func (s *Service) History(ctx context.Context, itemID string) ([]EventRecord, error) {
	rows, err := s.repo.History(ctx, itemID)
	if err != nil {
		return nil, err
	}
	records := make([]EventRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, newEventRecord(row))
	}
	return records, nil
}

// Status projects one item's current state from its stored history.
func (s *Service) Status(ctx context.Context, itemID string) (ProjectedStatus, bool, error) {
	rows, err := s.repo.History(ctx, itemID)
	if err != nil {
		return ProjectedStatus{}, false, err
	}
	status, ok := Project(rows)
	return status, ok, nil
}

// AllItems lists every known item with its latest status, substituting
// sentinels for absent fields.
func (s *Service) AllItems(ctx context.Context, limit int) ([]ItemView, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	statuses, err := s.repo.LatestPerItem(ctx, limit, false)
	if err != nil {
		return nil, err
	}
	views := make([]ItemView, 0, len(statuses))
	for _, status := range statuses {
		views = append(views, newItemView(status))
	}
	return views, nil
}

// Stats assembles advisory aggregates. Each sub-computation degrades to its
// zero value on storage errors so the response is always well-formed.
func (s *Service) Stats(ctx context.Context) StatsView {
	view := StatsView{ByKind: map[string]int64{}}

	if counts, err := s.repo.CountsByKind(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stats: counts by kind unavailable")
	} else {
		for kind, total := range counts {
			view.ByKind[string(kind)] = total
		}
	}
	for _, kind := range enums.Kinds() {
		if _, ok := view.ByKind[string(kind)]; !ok {
			view.ByKind[string(kind)] = 0
		}
	}

	if recent, err := s.repo.CountSince(ctx, statsWindow); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stats: recent count unavailable")
	} else {
		view.Last24h = recent
	}

	if distinct, err := s.repo.DistinctItemCount(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stats: distinct item count unavailable")
	} else {
		view.DistinctItems = distinct
	}

	return view
}
