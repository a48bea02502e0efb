package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	enumerateStates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipctl",
			Subsystem: "enumerate",
			Name:      "states_total",
			Help:      "Canonical states discovered.",
		},
		[]string{"protocol", "n"},
	)
	enumerateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gossipctl",
			Subsystem: "enumerate",
			Name:      "transitions_total",
			Help:      "Eligible call expansions explored.",
		},
		[]string{"protocol", "n"},
	)
	enumerateLevelDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gossipctl",
			Subsystem: "enumerate",
			Name:      "level_duration_seconds",
			Help:      "Wall time spent expanding one frontier level.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"protocol", "n"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(enumerateStates, enumerateTransitions, enumerateLevelDuration)
	})
}

// RecordLevel accounts one completed frontier level of a run.
func RecordLevel(protocol string, n, newStates, transitions int, duration time.Duration) {
	RegisterMetrics()
	nLabel := strconv.Itoa(n)
	enumerateStates.WithLabelValues(protocol, nLabel).Add(float64(newStates))
	enumerateTransitions.WithLabelValues(protocol, nLabel).Add(float64(transitions))
	enumerateLevelDuration.WithLabelValues(protocol, nLabel).Observe(duration.Seconds())
}
