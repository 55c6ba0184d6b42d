package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/assignment"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/sideeffects"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/slug"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const MsgRequiredFields = "Name, email, and time slot are required"

type Request struct {
	GuestName     string
	GuestEmail    string
	GuestPhone    string
	GuestCompany  string
	StartTime     string
	ClientID      string
	GuestTimezone string
	Notes         string
	FormResponses json.RawMessage
	// HostUserID is only honored when the booking type has no eligible hosts.
	HostUserID string
	// Origin is the caller's Origin header, used for manage links.
	Origin string
}

type Result struct {
	Appointment   model.Appointment
	BookingType   model.BookingType
	Host          model.User
	CancelURL     string
	RescheduleURL string
}

type validRequest struct {
	Request
	start time.Time
}

func validate(req Request) (validRequest, error) {
	req.GuestName = strings.TrimSpace(req.GuestName)
	req.GuestEmail = strings.TrimSpace(req.GuestEmail)
	req.StartTime = strings.TrimSpace(req.StartTime)
	if req.GuestName == "" || req.GuestEmail == "" || req.StartTime == "" {
		return validRequest{}, invalid(MsgRequiredFields)
	}
	addr, err := mail.ParseAddress(req.GuestEmail)
	if err != nil || addr.Address != req.GuestEmail {
		return validRequest{}, invalid("Invalid email address")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return validRequest{}, invalid("Invalid time slot")
	}
	if len(req.FormResponses) > 0 && !json.Valid(req.FormResponses) {
		return validRequest{}, invalid("Invalid form responses")
	}
	if req.ClientID = strings.TrimSpace(req.ClientID); req.ClientID != "" {
		id, err := uuid.Parse(req.ClientID)
		if err != nil {
			return validRequest{}, invalid("Invalid client id")
		}
		req.ClientID = id.String()
	}
	return validRequest{Request: req, start: start.UTC()}, nil
}

// guestTimezone returns tz when it names an IANA zone, else fallback.
func guestTimezone(tz, fallback string) string {
	tz = strings.TrimSpace(tz)
	if tz == "" || tz == "Local" {
		return fallback
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fallback
	}
	return tz
}

// Book creates an appointment for the booking URL segments. The overlap
// check, host choice and insert run in one storage transaction; side effects
// run after commit and cannot fail the booking.
func (s *Service) Book(ctx context.Context, segments []string, req Request) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "booking.book")
	defer span.End()

	res, err := s.book(ctx, segments, req)
	outcome := metrics.OutcomeCreated
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("appointment_id", res.Appointment.ID), attribute.String("host_id", res.Host.ID))
	case errors.Is(err, ErrConflict):
		outcome = metrics.OutcomeConflict
	case errors.Is(err, ErrNoHostAvailable):
		outcome = metrics.OutcomeNoHost
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, slug.ErrBookingTypeNotFound),
		errors.Is(err, slug.ErrUserNotFound),
		errors.Is(err, slug.ErrInvalidURL):
		outcome = metrics.OutcomeInvalid
	default:
		outcome = metrics.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.IncBooking(outcome)
	return res, err
}

func (s *Service) book(ctx context.Context, segments []string, req Request) (Result, error) {
	info, err := s.Info(ctx, segments)
	if err != nil {
		return Result{}, err
	}
	target := info.Target
	bt := target.BookingType

	vr, err := validate(req)
	if err != nil {
		return Result{}, err
	}
	start := vr.start
	end := start.Add(bt.Duration())

	fallback, err := s.fallbackHost(ctx, target, vr.HostUserID)
	if err != nil {
		return Result{}, err
	}

	timezone := guestTimezone(vr.GuestTimezone, info.Timezone())
	appt := model.Appointment{
		ID:            uuid.NewString(),
		TenantID:      bt.TenantID,
		BookingTypeID: bt.ID,
		ClientID:      vr.ClientID,
		StartTime:     start,
		EndTime:       end,
		Timezone:      timezone,
		Status:        bt.InitialStatus(),
		GuestName:     vr.GuestName,
		GuestEmail:    vr.GuestEmail,
		GuestPhone:    strings.TrimSpace(vr.GuestPhone),
		GuestCompany:  strings.TrimSpace(vr.GuestCompany),
		Notes:         vr.Notes,
		FormResponses: vr.FormResponses,
	}
	cancelURL, rescheduleURL := s.manageURLs(vr.Origin, appt.ID)

	var host model.User
	now := s.now()
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		taken, err := tx.HasOverlap(ctx, target.Scope(), start, end)
		if err != nil {
			return fmt.Errorf("overlap check: %w", err)
		}
		if taken {
			return ErrConflict
		}

		host, err = assignment.Pick(ctx, tx, target, fallback, now)
		if err != nil {
			return err
		}
		appt.HostID = host.ID

		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}

		payload, err := json.Marshal(outbox.AppointmentBooked{
			AppointmentID: appt.ID,
			TenantID:      appt.TenantID,
			BookingTypeID: appt.BookingTypeID,
			HostID:        appt.HostID,
			GuestEmail:    appt.GuestEmail,
			StartTime:     appt.StartTime,
			EndTime:       appt.EndTime,
			Status:        string(appt.Status),
			CancelURL:     cancelURL,
			RescheduleURL: rescheduleURL,
		})
		if err != nil {
			return err
		}
		return tx.InsertEvent(ctx, outbox.Event{
			ID:            uuid.NewString(),
			AggregateType: outbox.AggregateAppointment,
			AggregateID:   appt.ID,
			EventType:     outbox.EventAppointmentBooked,
			Payload:       payload,
		})
	})
	if errors.Is(err, storage.ErrConflict) {
		return Result{}, ErrConflict
	}
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"booking_type_id", bt.ID,
		"host_id", host.ID,
		"start_time", appt.StartTime,
		"status", appt.Status,
	)

	appt.Meeting = s.runSideEffects(ctx, sideeffects.Job{
		Appointment:   appt,
		BookingType:   bt,
		Host:          host,
		Tenant:        target.Tenant,
		CancelURL:     cancelURL,
		RescheduleURL: rescheduleURL,
	})

	return Result{
		Appointment:   appt,
		BookingType:   bt,
		Host:          host,
		CancelURL:     cancelURL,
		RescheduleURL: rescheduleURL,
	}, nil
}

// runSideEffects runs the post-commit work detached from the request context
// and waits at most effectsWait for its result. The booking is committed by
// now, so a slow provider only costs the response its meeting link.
func (s *Service) runSideEffects(ctx context.Context, job sideeffects.Job) model.MeetingInfo {
	done := make(chan model.MeetingInfo, 1)
	go func() {
		done <- s.effects.Run(context.WithoutCancel(ctx), job)
	}()
	if s.effectsWait <= 0 {
		return <-done
	}

	timer := time.NewTimer(s.effectsWait)
	defer timer.Stop()
	select {
	case info := <-done:
		return info
	case <-timer.C:
		s.logger.Warn("side effects still running, responding without meeting info",
			"appointment_id", job.Appointment.ID,
			"wait", s.effectsWait,
		)
		return job.Appointment.Meeting
	}
}

// fallbackHost resolves the request's explicit host for a direct booking type
// with no eligible hosts. The user must be active in the booking type's tenant.
func (s *Service) fallbackHost(ctx context.Context, target slug.Target, hostID string) (model.User, error) {
	hostID = strings.TrimSpace(hostID)
	if hostID == "" || target.Kind != slug.Direct || len(target.Hosts) > 0 {
		return model.User{}, nil
	}
	users, err := s.store.ActiveUsers(ctx, target.BookingType.TenantID, []string{hostID})
	if err != nil {
		return model.User{}, fmt.Errorf("fallback host: %w", err)
	}
	if len(users) == 0 {
		return model.User{}, nil
	}
	return users[0], nil
}

func (s *Service) manageURLs(origin, appointmentID string) (string, string) {
	base := normalizeOrigin(origin)
	if base == "" {
		base = normalizeOrigin(s.baseURL)
	}
	manage := base + "/book/manage/" + url.PathEscape(appointmentID)
	return manage, manage + "?action=reschedule"
}

func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + strings.TrimRight(u.Path, "/")
}
