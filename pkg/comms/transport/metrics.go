package transport

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "govalve",
			Subsystem: "transport",
			Name:      "notifications_total",
			Help:      "Inbound notifications by reassembly outcome.",
		},
		[]string{"outcome"},
	)
	fragmentWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "govalve",
			Subsystem: "transport",
			Name:      "fragment_writes_total",
			Help:      "Physical writes issued by the fragmenter.",
		},
	)
	partialEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "govalve",
			Subsystem: "transport",
			Name:      "partial_evictions_total",
			Help:      "Stale partial reassemblies swept from the table.",
		},
	)
)

// RegisterMetrics registers the transport collectors with the default
// prometheus registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(notificationsTotal, fragmentWritesTotal, partialEvictionsTotal)
	})
}

func recordNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}

func recordFragmentWrite() {
	fragmentWritesTotal.Inc()
}

func recordEviction() {
	partialEvictionsTotal.Inc()
}
