package watchdog

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedeegea/baggage-backend/internal/bus"
	"github.com/fedeegea/baggage-backend/pkg/config"
	"github.com/fedeegea/baggage-backend/pkg/enums"
	"github.com/fedeegea/baggage-backend/pkg/logger"
)

type stubManager struct {
	checkResult bool
	checkErr    error
	checked     []uuid.UUID
}

func (m *stubManager) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	m.checked = append(m.checked, eventID)
	return m.checkResult, m.checkErr
}

type memorySink struct {
	reports  []Report
	failures int // fail this many writes before succeeding
	err      error
	writes   int
}

func (s *memorySink) Write(_ context.Context, report Report) error {
	s.writes++
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, report)
	return nil
}

type clock struct {
	current time.Time
}

func (c *clock) now() time.Time { return c.current }

func (c *clock) advance(d time.Duration) time.Time {
	c.current = c.current.Add(d)
	return c.current
}

func testWatchdogConfig() config.WatchdogConfig {
	return config.WatchdogConfig{
		Timeout:       10 * time.Minute,
		SweepInterval: 30 * time.Second,
	}
}

func newTestService(t *testing.T, manager *stubManager, sink ReportSink, clk *clock) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:  testWatchdogConfig(),
		Manager: manager,
		Sink:    sink,
		Logger:  logger.New(logger.Options{ServiceName: "watchdog-test", Output: io.Discard}),
		Now:     clk.now,
	})
	require.NoError(t, err)
	return svc
}

func envelopeFor(itemID string, kind enums.EventKind) bus.Envelope {
	return bus.Envelope{
		Version:     bus.EnvelopeVersion,
		EventID:     uuid.NewString(),
		Sequence:    1,
		ItemID:      itemID,
		Kind:        string(kind),
		OccurredAt:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Origin:      "EZE",
		Destination: "MAD",
		Weight:      12.5,
	}
}

func TestHandleTracksItemInShadow(t *testing.T) {
	manager := &stubManager{}
	clk := &clock{current: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, manager, &memorySink{}, clk)

	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindScanned)))
	assert.Equal(t, 1, svc.ShadowSize())
	assert.Len(t, manager.checked, 1)
}

func TestHandleDuplicateDeliverySkipsShadowUpdate(t *testing.T) {
	manager := &stubManager{checkResult: true}
	clk := &clock{current: time.Now()}
	svc := newTestService(t, manager, &memorySink{}, clk)

	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindScanned)))
	assert.Zero(t, svc.ShadowSize())
}

func TestHandleIdempotencyErrorNacks(t *testing.T) {
	manager := &stubManager{checkErr: errors.New("redis down")}
	svc := newTestService(t, manager, &memorySink{}, &clock{current: time.Now()})

	err := svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindScanned))
	assert.Error(t, err)
	assert.Zero(t, svc.ShadowSize())
}

func TestHandleDeliveredClearsShadowEntry(t *testing.T) {
	manager := &stubManager{}
	clk := &clock{current: time.Now()}
	svc := newTestService(t, manager, &memorySink{}, clk)

	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindScanned)))
	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindDelivered)))
	assert.Zero(t, svc.ShadowSize())
}

func TestHandleLostEventReportsImmediately(t *testing.T) {
	manager := &stubManager{}
	sink := &memorySink{}
	clk := &clock{current: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, manager, sink, clk)

	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindLost)))

	require.Len(t, sink.reports, 1)
	assert.Equal(t, ReasonReportedLost, sink.reports[0].Reason)
	assert.Equal(t, "bag-1", sink.reports[0].ItemID)
	assert.Equal(t, enums.KindLost, sink.reports[0].State)
}

func TestHandleLostReportRetriesOnce(t *testing.T) {
	manager := &stubManager{}
	sink := &memorySink{failures: 1}
	svc := newTestService(t, manager, sink, &clock{current: time.Now()})

	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindLost)))

	assert.Equal(t, 2, sink.writes, "failed write retried once")
	require.Len(t, sink.reports, 1)
	assert.Equal(t, ReasonReportedLost, sink.reports[0].Reason)
}

func TestHandleLostReportDroppedAfterRetry(t *testing.T) {
	manager := &stubManager{}
	sink := &memorySink{err: errors.New("disk full")}
	clk := &clock{current: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, manager, sink, clk)

	// The message is still acked: reports are best-effort diagnostics.
	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindLost)))
	assert.Equal(t, 2, sink.writes)
	assert.Empty(t, sink.reports)

	// The drop is final; a later sweep does not resurrect the report.
	sink.err = nil
	assert.Zero(t, svc.Sweep(context.Background(), clk.advance(time.Hour)))
	assert.Empty(t, sink.reports)
}

func TestSweepReportsStalledItemOnce(t *testing.T) {
	manager := &stubManager{}
	sink := &memorySink{}
	clk := &clock{current: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, manager, sink, clk)

	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindLoaded)))

	// Within the timeout nothing is reported.
	assert.Zero(t, svc.Sweep(context.Background(), clk.advance(9*time.Minute)))

	assert.Equal(t, 1, svc.Sweep(context.Background(), clk.advance(2*time.Minute)))
	require.Len(t, sink.reports, 1)
	assert.Equal(t, ReasonTimeout, sink.reports[0].Reason)
	assert.Equal(t, enums.KindLoaded, sink.reports[0].State)

	// Repeated sweeps do not duplicate the report.
	assert.Zero(t, svc.Sweep(context.Background(), clk.advance(time.Hour)))
	assert.Len(t, sink.reports, 1)
}

func TestSweepRetriesFailedWriteOnce(t *testing.T) {
	manager := &stubManager{}
	sink := &memorySink{failures: 1}
	clk := &clock{current: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, manager, sink, clk)

	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindScanned)))

	assert.Equal(t, 1, svc.Sweep(context.Background(), clk.advance(11*time.Minute)))
	assert.Equal(t, 2, sink.writes, "failed write retried once")
	assert.Len(t, sink.reports, 1)
}

func TestSweepDropsReportAfterRetryExhausted(t *testing.T) {
	manager := &stubManager{}
	sink := &memorySink{err: errors.New("disk full")}
	clk := &clock{current: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, manager, sink, clk)

	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindScanned)))

	assert.Zero(t, svc.Sweep(context.Background(), clk.advance(11*time.Minute)))
	assert.Equal(t, 2, sink.writes)

	// Once dropped, later sweeps leave the item alone even with the sink back.
	sink.err = nil
	assert.Zero(t, svc.Sweep(context.Background(), clk.advance(time.Hour)))
	assert.Empty(t, sink.reports)
}

func TestProgressAfterReportAllowsSecondReport(t *testing.T) {
	manager := &stubManager{}
	sink := &memorySink{}
	clk := &clock{current: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, manager, sink, clk)

	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindScanned)))
	require.Equal(t, 1, svc.Sweep(context.Background(), clk.advance(11*time.Minute)))

	// The item comes back to life with a transition, then stalls again.
	require.NoError(t, svc.Handle(context.Background(), envelopeFor("bag-1", enums.KindLoaded)))
	assert.Equal(t, 1, svc.Sweep(context.Background(), clk.advance(11*time.Minute)))
	assert.Len(t, sink.reports, 2)
}
