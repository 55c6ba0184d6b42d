package sideeffects

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/outbox"
	"github.com/segmentio/kafka-go"
)

// Deferred leaves side effects to the booked-event consumer. Run only echoes
// the meeting info already on the appointment.
type Deferred struct{}

func (Deferred) Run(_ context.Context, job Job) model.MeetingInfo {
	return job.Appointment.Meeting
}

// HandleBooked is the consumer handler for outbox.EventAppointmentBooked.
// Malformed payloads are dropped; load failures are returned.
func (r *Runner) HandleBooked(ctx context.Context, msg kafka.Message) error {
	var evt outbox.AppointmentBooked
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.AppointmentID == "" {
		r.logger.Error("invalid booked event", "err", err, "topic", msg.Topic)
		return nil
	}

	job, err := r.loadJob(ctx, evt)
	if err != nil {
		return fmt.Errorf("load job %s: %w", evt.AppointmentID, err)
	}
	if !job.Appointment.Status.OccupiesSlot() {
		r.logger.Info("skipping side effects for inactive appointment", "appointment_id", evt.AppointmentID, "status", job.Appointment.Status)
		return nil
	}
	r.Run(ctx, job)
	return nil
}

func (r *Runner) loadJob(ctx context.Context, evt outbox.AppointmentBooked) (Job, error) {
	appt, err := r.store.GetAppointment(ctx, evt.AppointmentID)
	if err != nil {
		return Job{}, err
	}
	bt, err := r.store.BookingTypeByID(ctx, appt.BookingTypeID)
	if err != nil {
		return Job{}, fmt.Errorf("booking type: %w", err)
	}
	host, err := r.store.UserByID(ctx, appt.HostID)
	if err != nil {
		return Job{}, fmt.Errorf("host: %w", err)
	}
	tenant, err := r.store.Tenant(ctx, appt.TenantID)
	if err != nil {
		tenant = model.Tenant{ID: appt.TenantID}
	}
	return Job{
		Appointment:   appt,
		BookingType:   bt,
		Host:          host,
		Tenant:        tenant,
		CancelURL:     evt.CancelURL,
		RescheduleURL: evt.RescheduleURL,
	}, nil
}
