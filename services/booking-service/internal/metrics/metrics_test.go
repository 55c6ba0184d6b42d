package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(bookings.WithLabelValues(OutcomeConflict))
	IncBooking(OutcomeConflict)
	assert.Equal(t, before+1, testutil.ToFloat64(bookings.WithLabelValues(OutcomeConflict)))

	failed := testutil.ToFloat64(sideEffects.WithLabelValues("email", "failed"))
	IncSideEffect("email", false)
	IncSideEffect("email", true)
	assert.Equal(t, failed+1, testutil.ToFloat64(sideEffects.WithLabelValues("email", "failed")))

	IncAvailability("slots")
	assert.GreaterOrEqual(t, testutil.ToFloat64(availabilityQueries.WithLabelValues("slots")), 1.0)
}
