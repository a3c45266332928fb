package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TrackerMetrics records activity of the lifecycle tracker loop.
type TrackerMetrics struct {
	eventsEmitted  *prometheus.CounterVec
	appendFailures prometheus.Counter
	activeItems    prometheus.Gauge
}

// NewTrackerMetrics registers the tracker instruments on the provided registerer.
func NewTrackerMetrics(reg prometheus.Registerer) *TrackerMetrics {
	if reg == nil {
		return &TrackerMetrics{}
	}
	eventsEmitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "baggage_events_emitted_total",
		Help: "Baggage events emitted by the tracker, by kind.",
	}, []string{"kind"})
	appendFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baggage_append_failures_total",
		Help: "Durable append failures observed by the tracker.",
	})
	activeItems := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "baggage_active_items",
		Help: "Items currently tracked in a non-terminal state.",
	})
	reg.MustRegister(eventsEmitted, appendFailures, activeItems)
	return &TrackerMetrics{
		eventsEmitted:  eventsEmitted,
		appendFailures: appendFailures,
		activeItems:    activeItems,
	}
}

// IncEmitted counts one emitted event of the given kind.
func (m *TrackerMetrics) IncEmitted(kind string) {
	if m == nil || m.eventsEmitted == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncAppendFailure counts one failed durable write.
func (m *TrackerMetrics) IncAppendFailure() {
	if m == nil || m.appendFailures == nil {
		return
	}
	m.appendFailures.Inc()
}

// SetActiveItems records the current active-set size.
func (m *TrackerMetrics) SetActiveItems(n int) {
	if m == nil || m.activeItems == nil {
		return
	}
	m.activeItems.Set(float64(n))
}

// RelayMetrics records bus publish outcomes.
type RelayMetrics struct {
	published       prometheus.Counter
	publishFailures *prometheus.CounterVec
}

// NewRelayMetrics registers the publish instruments on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baggage_events_published_total",
		Help: "Events successfully published to the bus.",
	})
	publishFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "baggage_publish_failures_total",
		Help: "Publish failures, by error code.",
	}, []string{"code"})
	reg.MustRegister(published, publishFailures)
	return &RelayMetrics{
		published:       published,
		publishFailures: publishFailures,
	}
}

// IncPublished counts one acknowledged publish.
func (m *RelayMetrics) IncPublished() {
	if m == nil || m.published == nil {
		return
	}
	m.published.Inc()
}

// IncPublishFailure counts one failed publish attempt under the given code.
func (m *RelayMetrics) IncPublishFailure(code string) {
	if m == nil || m.publishFailures == nil {
		return
	}
	m.publishFailures.WithLabelValues(normalizeLabel(code)).Inc()
}

// WatchdogMetrics records consumer-side activity.
type WatchdogMetrics struct {
	consumed    prometheus.Counter
	malformed   prometheus.Counter
	lostReports prometheus.Counter
	shadowSize  prometheus.Gauge
}

// NewWatchdogMetrics registers the watchdog instruments on the provided registerer.
func NewWatchdogMetrics(reg prometheus.Registerer) *WatchdogMetrics {
	if reg == nil {
		return &WatchdogMetrics{}
	}
	consumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baggage_events_consumed_total",
		Help: "Events consumed from the bus.",
	})
	malformed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baggage_events_malformed_total",
		Help: "Bus payloads rejected by envelope validation.",
	})
	lostReports := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "baggage_lost_reports_total",
		Help: "Lost-item reports written to the durable sink.",
	})
	shadowSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "baggage_shadow_items",
		Help: "Items currently tracked in the watchdog shadow state.",
	})
	reg.MustRegister(consumed, malformed, lostReports, shadowSize)
	return &WatchdogMetrics{
		consumed:    consumed,
		malformed:   malformed,
		lostReports: lostReports,
		shadowSize:  shadowSize,
	}
}

// IncConsumed counts one consumed bus message.
func (m *WatchdogMetrics) IncConsumed() {
	if m == nil || m.consumed == nil {
		return
	}
	m.consumed.Inc()
}

// IncMalformed counts one rejected payload.
func (m *WatchdogMetrics) IncMalformed() {
	if m == nil || m.malformed == nil {
		return
	}
	m.malformed.Inc()
}

// IncLostReport counts one written lost-item report.
func (m *WatchdogMetrics) IncLostReport() {
	if m == nil || m.lostReports == nil {
		return
	}
	m.lostReports.Inc()
}

// SetShadowSize records the shadow map size.
func (m *WatchdogMetrics) SetShadowSize(n int) {
	if m == nil || m.shadowSize == nil {
		return
	}
	m.shadowSize.Set(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
