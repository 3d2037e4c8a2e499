package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"thurman/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry counting emitted domain events. It is
// an events.Emitter and is meant to sit in a Fanout next to the journal.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "thurman",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of emitted events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Emit increments the counter for the event's type.
func (m *eventMetrics) Emit(e events.Event) {
	if m == nil || e == nil {
		return
	}
	typ := strings.TrimSpace(e.EventType())
	if typ == "" {
		typ = "unknown"
	}
	m.emitted.WithLabelValues(typ).Inc()
}
