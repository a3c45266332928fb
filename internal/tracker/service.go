package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fedeegea/baggage-backend/internal/events"
	"github.com/fedeegea/baggage-backend/pkg/config"
	"github.com/fedeegea/baggage-backend/pkg/enums"
	pkgerrors "github.com/fedeegea/baggage-backend/pkg/errors"
	"github.com/fedeegea/baggage-backend/pkg/logger"
	"github.com/fedeegea/baggage-backend/pkg/metrics"
)

// airports is the pool origins and destinations are drawn from.
var airports = []string{"EZE", "AEP", "COR", "MDZ", "BRC", "USH", "MAD", "BCN", "MIA", "JFK"}

// ActiveItem is one item the tracker is driving through its lifecycle.
// NextActionAt is when the next transition for this item falls due.
type ActiveItem struct {
	ItemID       string
	State        enums.EventKind
	Origin       string
	Destination  string
	Weight       float64
	NextActionAt time.Time
}

type recorder interface {
	Record(ctx context.Context, event events.Event) (events.Event, error)
}

type inflightLister interface {
	LatestPerItem(ctx context.Context, limit int, excludeTerminal bool) ([]events.ProjectedStatus, error)
}

// ServiceParams wires the tracker's dependencies.
type ServiceParams struct {
	Config   config.SimulatorConfig
	Recorder recorder
	Lister   inflightLister
	Logger   *logger.Logger
	Metrics  *metrics.TrackerMetrics

	// Now and Rand are injectable for tests; production uses the defaults.
	Now  func() time.Time
	Rand *rand.Rand
}

// Service drives items through scanned -> loaded -> delivered on randomized
// delays. All active-set mutations happen under one mutex, so a whole tick is
// atomic with respect to concurrent status reads.
type Service struct {
	cfg      config.SimulatorConfig
	recorder recorder
	lister   inflightLister
	logg     *logger.Logger
	metrics  *metrics.TrackerMetrics

	now func() time.Time

	mu        sync.Mutex
	rng       *rand.Rand
	active    map[string]*ActiveItem
	lastSpawn time.Time
}

// NewService builds the lifecycle tracker.
func NewService(params ServiceParams) (*Service, error) {
	if params.Recorder == nil {
		return nil, errors.New("event recorder is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	now := params.Now
	if now == nil {
		now = time.Now
	}
	rng := params.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Service{
		cfg:      params.Config,
		recorder: params.Recorder,
		lister:   params.Lister,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
		rng:      rng,
		active:   make(map[string]*ActiveItem),
	}, nil
}

// SpawnItem creates one new item, records its scanned event and schedules its
// load transition. Spawning is refused at capacity so the active set stays
// bounded.
func (s *Service) SpawnItem(ctx context.Context) (ActiveItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnLocked(ctx)
}

func (s *Service) spawnLocked(ctx context.Context) (ActiveItem, error) {
	if len(s.active) >= s.cfg.MaxActive {
		return ActiveItem{}, pkgerrors.New(pkgerrors.CodeSchedulingAnomaly, "active set is at capacity")
	}

	origin, destination := s.pickRouteLocked()
	item := ActiveItem{
		ItemID:      uuid.NewString(),
		State:       enums.KindScanned,
		Origin:      origin,
		Destination: destination,
		Weight:      s.pickWeightLocked(),
	}

	now := s.now()
	stored, err := s.recorder.Record(ctx, events.Event{
		ItemID:      item.ItemID,
		Kind:        enums.KindScanned,
		OccurredAt:  now,
		Origin:      item.Origin,
		Destination: item.Destination,
		Weight:      item.Weight,
	})
	if err != nil {
		s.metrics.IncAppendFailure()
		return ActiveItem{}, fmt.Errorf("recording scanned event: %w", err)
	}

	item.NextActionAt = now.Add(s.randomDelayLocked(s.cfg.LoadDelayMin, s.cfg.LoadDelayMax))
	s.active[item.ItemID] = &item
	s.lastSpawn = now
	s.metrics.IncEmitted(string(enums.KindScanned))
	s.metrics.SetActiveItems(len(s.active))

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"item_id":     item.ItemID,
		"origin":      item.Origin,
		"destination": item.Destination,
		"weight_kg":   item.Weight,
		"sequence":    stored.ID,
	})
	s.logg.Info(logCtx, "item scanned")
	return item, nil
}

// Track registers an externally created item so the tracker schedules its
// remaining transitions. The first registration wins; re-tracking a known item
// is a scheduling anomaly.
func (s *Service) Track(ctx context.Context, item ActiveItem) error {
	if item.ItemID == "" {
		return pkgerrors.New(pkgerrors.CodeSchedulingAnomaly, "item id is required")
	}
	if item.State.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeSchedulingAnomaly, "terminal items cannot be tracked")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[item.ItemID]; exists {
		s.logg.Warn(s.logg.WithItemID(ctx, item.ItemID), "item is already tracked, keeping existing schedule")
		return pkgerrors.New(pkgerrors.CodeSchedulingAnomaly, "item is already tracked")
	}

	if item.NextActionAt.IsZero() {
		item.NextActionAt = s.nextActionForLocked(item.State, s.now())
	}
	s.active[item.ItemID] = &item
	s.metrics.SetActiveItems(len(s.active))
	return nil
}

// Recover reloads in-flight items from the store after a restart so their
// lifecycles resume instead of stalling forever. Recovery is bounded and
// idempotent; items already tracked are left untouched.
func (s *Service) Recover(ctx context.Context) (int, error) {
	if s.lister == nil {
		return 0, nil
	}
	limit := s.cfg.RecoveryLimit
	if limit <= 0 {
		return 0, nil
	}

	statuses, err := s.lister.LatestPerItem(ctx, limit, true)
	if err != nil {
		return 0, fmt.Errorf("listing in-flight items: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recovered := 0
	now := s.now()
	for _, status := range statuses {
		if _, exists := s.active[status.ItemID]; exists {
			s.logg.Warn(s.logg.WithItemID(ctx, status.ItemID), "recovery skipped an already tracked item")
			continue
		}
		if status.State.IsTerminal() {
			continue
		}
		s.active[status.ItemID] = &ActiveItem{
			ItemID:       status.ItemID,
			State:        status.State,
			Origin:       status.Origin,
			Destination:  status.Destination,
			Weight:       status.Weight,
			NextActionAt: s.nextActionForLocked(status.State, now),
		}
		recovered++
	}
	s.metrics.SetActiveItems(len(s.active))

	if recovered > 0 {
		s.logg.Info(s.logg.WithField(ctx, "recovered", recovered), "resumed in-flight items")
	}
	return recovered, nil
}

// AdvanceDueItems applies every transition that has fallen due by now. The
// whole batch runs under the mutex, so readers never observe a half-applied
// tick. A failed append leaves the item's schedule untouched; the transition
// retries on the next tick.
func (s *Service) AdvanceDueItems(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	advanced := 0
	for _, item := range s.active {
		if item.NextActionAt.After(now) {
			continue
		}

		var next enums.EventKind
		switch item.State {
		case enums.KindScanned:
			next = enums.KindLoaded
		case enums.KindLoaded:
			next = enums.KindDelivered
		default:
			// Terminal state left in the active set; should not happen.
			s.logg.Warn(s.logg.WithItemID(ctx, item.ItemID), "terminal item dropped from active set")
			delete(s.active, item.ItemID)
			continue
		}

		// Scan attributes ride on every event, so the latest row alone is
		// enough to rebuild an item without replaying its history.
		_, err := s.recorder.Record(ctx, events.Event{
			ItemID:      item.ItemID,
			Kind:        next,
			OccurredAt:  now,
			Origin:      item.Origin,
			Destination: item.Destination,
			Weight:      item.Weight,
		})
		if err != nil {
			s.metrics.IncAppendFailure()
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"item_id": item.ItemID,
				"kind":    next,
				"error":   err.Error(),
			})
			s.logg.Warn(logCtx, "transition append failed, will retry next tick")
			continue
		}

		s.metrics.IncEmitted(string(next))
		advanced++

		logCtx := s.logg.WithFields(ctx, map[string]any{"item_id": item.ItemID, "kind": next})
		if next == enums.KindDelivered {
			delete(s.active, item.ItemID)
			s.logg.Info(logCtx, "item delivered")
			continue
		}

		item.State = next
		item.NextActionAt = now.Add(s.randomDelayLocked(s.cfg.DeliverDelayMin, s.cfg.DeliverDelayMax))
		s.logg.Info(logCtx, "item loaded")
	}

	s.metrics.SetActiveItems(len(s.active))
	return advanced
}

// Run drives the tracker until the context is canceled: transitions are
// applied every tick and a new item spawns once per generation interval while
// below capacity.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "tracker loop stopped")
			return ctx.Err()
		case <-ticker.C:
			now := s.now()
			s.AdvanceDueItems(ctx, now)
			s.maybeSpawn(ctx, now)
		}
	}
}

func (s *Service) maybeSpawn(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active) >= s.cfg.MaxActive {
		return
	}
	if !s.lastSpawn.IsZero() && now.Sub(s.lastSpawn) < s.cfg.GenerationInterval {
		return
	}
	if _, err := s.spawnLocked(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "spawn skipped")
	}
}

// Status returns a point-in-time snapshot of the active set.
func (s *Service) Status() StatusView {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	items := make([]ActiveItemView, 0, len(s.active))
	for _, item := range s.active {
		items = append(items, newActiveItemView(*item, now))
	}
	return StatusView{
		ActiveCount:           len(s.active),
		MaxActive:             s.cfg.MaxActive,
		GenerationIntervalSec: int(s.cfg.GenerationInterval / time.Second),
		Items:                 items,
	}
}

func (s *Service) nextActionForLocked(state enums.EventKind, now time.Time) time.Time {
	if state == enums.KindLoaded {
		return now.Add(s.randomDelayLocked(s.cfg.DeliverDelayMin, s.cfg.DeliverDelayMax))
	}
	return now.Add(s.randomDelayLocked(s.cfg.LoadDelayMin, s.cfg.LoadDelayMax))
}

func (s *Service) randomDelayLocked(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

func (s *Service) pickRouteLocked() (string, string) {
	origin := airports[s.rng.Intn(len(airports))]
	destination := airports[s.rng.Intn(len(airports))]
	for destination == origin {
		destination = airports[s.rng.Intn(len(airports))]
	}
	return origin, destination
}

// pickWeightLocked draws a weight in kilograms rounded to one decimal.
func (s *Service) pickWeightLocked() float64 {
	min, max := s.cfg.WeightMinKg, s.cfg.WeightMaxKg
	if max <= min {
		return min
	}
	weight := min + s.rng.Float64()*(max-min)
	return math.Round(weight*10) / 10
}
