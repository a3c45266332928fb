package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fedeegea/baggage-backend/internal/bus"
	"github.com/fedeegea/baggage-backend/pkg/config"
	"github.com/fedeegea/baggage-backend/pkg/enums"
	"github.com/fedeegea/baggage-backend/pkg/logger"
	"github.com/fedeegea/baggage-backend/pkg/metrics"
)

const watchdogConsumerName = "watchdog"

// Report reasons written to the durable sink.
const (
	ReasonTimeout      = "timeout"
	ReasonReportedLost = "reported_lost"
)

// Report is one lost-item record destined for the durable sink.
type Report struct {
	ItemID      string
	State       enums.EventKind
	Origin      string
	Destination string
	Weight      float64
	LastSeenAt  time.Time
	ReportedAt  time.Time
	Reason      string
}

// ReportSink persists lost-item reports.
type ReportSink interface {
	Write(ctx context.Context, report Report) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

type shadowEntry struct {
	state       enums.EventKind
	origin      string
	destination string
	weight      float64
	lastSeenAt  time.Time
	reported    bool
}

// ServiceParams wires the watchdog's dependencies.
type ServiceParams struct {
	Config  config.WatchdogConfig
	Manager idempotencyChecker
	Sink    ReportSink
	Logger  *logger.Logger
	Metrics *metrics.WatchdogMetrics

	// Now is injectable for tests; production uses time.Now.
	Now func() time.Time
}

// Service maintains an independent shadow of every item seen on the bus and
// reports items that go quiet in a non-terminal state. It never reads the
// event store; the bus is its only input.
type Service struct {
	cfg     config.WatchdogConfig
	manager idempotencyChecker
	sink    ReportSink
	logg    *logger.Logger
	metrics *metrics.WatchdogMetrics

	now func() time.Time

	mu     sync.Mutex
	shadow map[string]*shadowEntry
}

// NewService builds the lost-item watchdog.
func NewService(params ServiceParams) (*Service, error) {
	if params.Manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if params.Sink == nil {
		return nil, errors.New("report sink is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Config.Timeout <= 0 {
		return nil, errors.New("watchdog timeout must be positive")
	}

	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		cfg:     params.Config,
		manager: params.Manager,
		sink:    params.Sink,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
		shadow:  make(map[string]*shadowEntry),
	}, nil
}

// Handle applies one bus envelope to the shadow state. Duplicate deliveries
// are absorbed by the idempotency guard; an error return nacks the message
// for redelivery.
func (s *Service) Handle(ctx context.Context, envelope bus.Envelope) error {
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		// Validation upstream guarantees a uuid; treat anything else as drop.
		s.logg.Warn(s.logg.WithField(ctx, "event_id", envelope.EventID), "unparseable event id dropped")
		return nil
	}

	already, err := s.manager.CheckAndMarkProcessed(ctx, watchdogConsumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		s.logg.Info(ctx, "event already processed")
		return nil
	}

	s.apply(ctx, envelope)
	return nil
}

func (s *Service) apply(ctx context.Context, envelope bus.Envelope) {
	kind := enums.EventKind(envelope.Kind)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if kind == enums.KindDelivered {
		delete(s.shadow, envelope.ItemID)
		s.metrics.SetShadowSize(len(s.shadow))
		s.logg.Info(s.logg.WithItemID(ctx, envelope.ItemID), "item delivered, shadow entry cleared")
		return
	}

	entry, ok := s.shadow[envelope.ItemID]
	if !ok {
		entry = &shadowEntry{}
		s.shadow[envelope.ItemID] = entry
	}
	if entry.state != kind {
		// Progress resets the reported flag so a revived item can be
		// reported again if it stalls a second time.
		entry.reported = false
	}
	entry.state = kind
	entry.lastSeenAt = now
	if envelope.Origin != "" {
		entry.origin = envelope.Origin
	}
	if envelope.Destination != "" {
		entry.destination = envelope.Destination
	}
	if envelope.Weight != 0 {
		entry.weight = envelope.Weight
	}
	s.metrics.SetShadowSize(len(s.shadow))

	if kind == enums.KindLost && !entry.reported {
		// Reports are advisory; the sink never holds up the bus. One retry,
		// then the report is dropped and the entry still counts as reported.
		entry.reported = true
		if err := s.writeReport(ctx, reportFromEntry(envelope.ItemID, entry, now, ReasonReportedLost)); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"item_id": envelope.ItemID, "error": err.Error()})
			s.logg.Error(logCtx, "lost report dropped after retry", err)
			return
		}
		s.metrics.IncLostReport()
		s.logg.Info(s.logg.WithItemID(ctx, envelope.ItemID), "explicit lost event reported")
	}
}

// writeReport writes to the sink with a single retry on failure.
func (s *Service) writeReport(ctx context.Context, report Report) error {
	err := s.sink.Write(ctx, report)
	if err == nil {
		return nil
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"item_id": report.ItemID, "error": err.Error()})
	s.logg.Warn(logCtx, "report write failed, retrying once")
	if err := s.sink.Write(ctx, report); err != nil {
		return fmt.Errorf("writing report after retry: %w", err)
	}
	return nil
}

// Sweep reports every non-terminal item that has been quiet longer than the
// timeout. Each stall is reported once; a failed write is retried once and
// then dropped, the entry still marked so the stall is not re-reported.
func (s *Service) Sweep(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	reported := 0
	for itemID, entry := range s.shadow {
		if entry.reported || entry.state.IsTerminal() {
			continue
		}
		if now.Sub(entry.lastSeenAt) <= s.cfg.Timeout {
			continue
		}

		entry.reported = true
		if err := s.writeReport(ctx, reportFromEntry(itemID, entry, now, ReasonTimeout)); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"item_id": itemID, "error": err.Error()})
			s.logg.Error(logCtx, "lost report dropped after retry", err)
			continue
		}
		reported++
		s.metrics.IncLostReport()

		logCtx := s.logg.WithFields(ctx, map[string]any{
			"item_id":      itemID,
			"state":        entry.state,
			"last_seen_at": entry.lastSeenAt.Format(time.RFC3339),
		})
		s.logg.Info(logCtx, "stalled item reported as lost")
	}
	return reported
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "watchdog sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx, s.now())
		}
	}
}

// ShadowSize returns how many items the shadow currently tracks.
func (s *Service) ShadowSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shadow)
}

func reportFromEntry(itemID string, entry *shadowEntry, now time.Time, reason string) Report {
	return Report{
		ItemID:      itemID,
		State:       entry.state,
		Origin:      entry.origin,
		Destination: entry.destination,
		Weight:      entry.weight,
		LastSeenAt:  entry.lastSeenAt,
		ReportedAt:  now,
		Reason:      reason,
	}
}
