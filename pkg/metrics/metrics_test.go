package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestTrackerMetricsExportInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTrackerMetrics(reg)
	m.IncEmitted("scanned")
	m.IncEmitted("scanned")
	m.IncAppendFailure()
	m.SetActiveItems(7)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := counterValue(mfs, "baggage_events_emitted_total", "kind", "scanned"); err != nil {
		t.Fatalf("fetch emitted: %v", err)
	} else if got != 2 {
		t.Fatalf("expected emitted=2, got %f", got)
	}

	if got, err := gaugeValue(mfs, "baggage_active_items"); err != nil {
		t.Fatalf("fetch active items: %v", err)
	} else if got != 7 {
		t.Fatalf("expected active=7, got %f", got)
	}
}

func TestWatchdogMetricsNilSafe(t *testing.T) {
	var m *WatchdogMetrics
	m.IncConsumed()
	m.IncMalformed()
	m.IncLostReport()
	m.SetShadowSize(3)

	empty := NewWatchdogMetrics(nil)
	empty.IncConsumed()
}

func TestRelayMetricsNormalizeEmptyCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)
	m.IncPublishFailure("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := counterValue(mfs, "baggage_publish_failures_total", "code", "unknown"); err != nil {
		t.Fatalf("fetch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failures=1, got %f", got)
	}
}

func counterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if label == "" {
			return metric.GetCounter().GetValue(), nil
		}
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("label %s=%s not found in %q", label, value, name)
}

func gaugeValue(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		return metric.GetGauge().GetValue(), nil
	}
	return 0, fmt.Errorf("metric %q has no samples", name)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
