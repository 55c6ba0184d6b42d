package outbox

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/agencyhub/libs/kafkax"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestToMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	rec := Record{
		ID:          7,
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   EventAppointmentBooked,
		Payload:     []byte(`{"appointment_id":"appt-1"}`),
		Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	msg := toMessage(context.Background(), rec)

	assert.Equal(t, EventAppointmentBooked, msg.Topic)
	assert.Equal(t, "appt-1", string(msg.Key))
	assert.Equal(t, "evt-1", kafkax.HeaderValue(msg.Headers, "event_id"))
	assert.Equal(t, EventAppointmentBooked, kafkax.HeaderValue(msg.Headers, "event_type"))
	assert.Equal(t, rec.Traceparent, kafkax.HeaderValue(msg.Headers, "traceparent"))
}
