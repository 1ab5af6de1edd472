package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	indexed   *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking ledger event delivery.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipjar",
				Subsystem: "events",
				Name:      "delivered_total",
				Help:      "Events delivered to subscribers segmented by sink and type.",
			}, []string{"sink", "type"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipjar",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events dropped because a subscriber queue was full.",
			}, []string{"sink"}),
			indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tipjar",
				Subsystem: "events",
				Name:      "indexed_total",
				Help:      "Events written to the SQL mirror segmented by type and outcome.",
			}, []string{"type", "outcome"}),
		}
		prometheus.MustRegister(eventRegistry.delivered, eventRegistry.dropped, eventRegistry.indexed)
	})
	return eventRegistry
}

func normalizeLabel(value string) string {
	normalized := strings.TrimSpace(strings.ToLower(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// RecordDelivered counts an event handed to a subscriber.
func (m *eventMetrics) RecordDelivered(sink, eventType string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(sink), normalizeLabel(eventType)).Inc()
}

// RecordDropped counts an event a subscriber could not accept.
func (m *eventMetrics) RecordDropped(sink string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(sink)).Inc()
}

// RecordIndexed counts an event processed by the SQL indexer.
func (m *eventMetrics) RecordIndexed(eventType, outcome string) {
	if m == nil {
		return
	}
	m.indexed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
