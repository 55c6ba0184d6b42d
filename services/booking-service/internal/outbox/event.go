package outbox

import "time"

const (
	AggregateAppointment   = "appointment"
	EventAppointmentBooked = "booking.appointment.booked.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentBooked is the payload of EventAppointmentBooked.
type AppointmentBooked struct {
	AppointmentID string    `json:"appointment_id"`
	TenantID      string    `json:"tenant_id"`
	BookingTypeID string    `json:"booking_type_id"`
	HostID        string    `json:"host_id"`
	GuestEmail    string    `json:"guest_email"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	CancelURL     string    `json:"cancel_url"`
	RescheduleURL string    `json:"reschedule_url"`
}
