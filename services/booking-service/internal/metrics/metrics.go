package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "booking"

var (
	once sync.Once

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_total",
			Help:      "Booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	sideEffects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effects_total",
			Help:      "Post-booking side effects by step and result.",
		},
		[]string{"step", "result"},
	)

	availabilityQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_queries_total",
			Help:      "Availability reads by view.",
		},
		[]string{"view"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookings, sideEffects, availabilityQueries)
	})
}

// Booking outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeNoHost   = "no_host"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

func IncBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

// IncSideEffect records one side-effect step; ok=false counts a failure.
func IncSideEffect(step string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	sideEffects.WithLabelValues(step, result).Inc()
}

// IncAvailability counts an availability read; view is info, slots or days.
func IncAvailability(view string) {
	availabilityQueries.WithLabelValues(view).Inc()
}
