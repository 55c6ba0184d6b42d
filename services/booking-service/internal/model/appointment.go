package model

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// OccupiesSlot reports whether an appointment in this status blocks its interval.
func (s Status) OccupiesSlot() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// OccupyingStatuses lists the statuses that count for conflict and load checks.
var OccupyingStatuses = []Status{StatusScheduled, StatusConfirmed}

type Appointment struct {
	ID            string
	TenantID      string
	BookingTypeID string
	HostID        string
	ClientID      string
	StartTime     time.Time
	EndTime       time.Time
	Timezone      string
	Status        Status
	GuestName     string
	GuestEmail    string
	GuestPhone    string
	GuestCompany  string
	Notes         string
	FormResponses json.RawMessage
	Meeting       MeetingInfo
	CreatedAt     time.Time
}

// MeetingInfo holds identifiers filled in after the appointment is persisted.
// Any of them may stay empty.
type MeetingInfo struct {
	MeetingLink     string
	MeetingID       string
	CalendarEventID string
}

func (m MeetingInfo) IsZero() bool {
	return m.MeetingLink == "" && m.MeetingID == "" && m.CalendarEventID == ""
}

// Busy is an occupying appointment together with the buffers of the booking
// type that owns it.
type Busy struct {
	Start        time.Time
	End          time.Time
	BufferBefore time.Duration
	BufferAfter  time.Duration
}

// Padded returns the interval widened by the owning booking type's buffers.
func (b Busy) Padded() (time.Time, time.Time) {
	return b.Start.Add(-b.BufferBefore), b.End.Add(b.BufferAfter)
}

// Scope selects which appointments participate in a conflict check: a single
// host when HostID is set, otherwise the whole tenant.
type Scope struct {
	TenantID string
	HostID   string
}

// MeetingRequest describes the video meeting or calendar event to create for
// an appointment.
type MeetingRequest struct {
	AppointmentID string
	Topic         string
	Description   string
	Start         time.Time
	End           time.Time
	Timezone      string
	AttendeeName  string
	AttendeeEmail string
}

func (m MeetingRequest) DurationMinutes() int {
	return int(m.End.Sub(m.Start) / time.Minute)
}
