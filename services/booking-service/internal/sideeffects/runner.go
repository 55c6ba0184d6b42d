// Package sideeffects runs the post-booking work: meeting creation, the
// appointment patch and the confirmation email. Every step is best-effort;
// failures are logged and counted, never returned to the booking caller.
package sideeffects

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/email"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
)

const (
	StepZoom     = "zoom"
	StepCalendar = "calendar"
	StepPatch    = "patch"
	StepEmail    = "email"
	StepToken    = "token"
)

// Job is one booked appointment together with what the side effects need to
// describe it.
type Job struct {
	Appointment   model.Appointment
	BookingType   model.BookingType
	Host          model.User
	Tenant        model.Tenant
	CancelURL     string
	RescheduleURL string
}

type ZoomClient interface {
	CreateMeeting(ctx context.Context, in *model.Integration, req model.MeetingRequest) (model.MeetingInfo, error)
}

type CalendarClient interface {
	CreateEvent(ctx context.Context, in *model.Integration, req model.MeetingRequest, withConference bool) (model.MeetingInfo, error)
}

// Store is the slice of storage.Store the runner reads and patches.
type Store interface {
	Integrations(ctx context.Context, userID string) ([]model.Integration, error)
	UpdateIntegrationToken(ctx context.Context, in model.Integration) error
	UpdateMeeting(ctx context.Context, appointmentID string, info model.MeetingInfo) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	BookingTypeByID(ctx context.Context, id string) (model.BookingType, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	Tenant(ctx context.Context, id string) (model.Tenant, error)
}

type Config struct {
	Zoom     ZoomClient
	Calendar CalendarClient
	Mailer   email.Sender
	// PlaceholderBaseURL prefixes synthesized meeting slugs.
	PlaceholderBaseURL string
	// Timeout bounds one Run across every provider call. Zero means DefaultTimeout.
	Timeout time.Duration
}

const DefaultTimeout = 30 * time.Second

type Runner struct {
	store           Store
	logger          *slog.Logger
	zoom            ZoomClient
	calendar        CalendarClient
	mailer          email.Sender
	placeholderBase string
	timeout         time.Duration
	slug            func() string
}

func NewRunner(store Store, logger *slog.Logger, cfg Config) *Runner {
	base := strings.TrimSpace(cfg.PlaceholderBaseURL)
	if base == "" {
		base = "https://meet.google.com/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		store:           store,
		logger:          logger,
		zoom:            cfg.Zoom,
		calendar:        cfg.Calendar,
		mailer:          cfg.Mailer,
		placeholderBase: base,
		timeout:         timeout,
		slug:            placeholderSlug,
	}
}

// Run performs the side effects for job and returns the meeting identifiers
// it ended up with.
func (r *Runner) Run(ctx context.Context, job Job) model.MeetingInfo {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	log := r.logger.With("appointment_id", job.Appointment.ID, "host_id", job.Host.ID)

	info := job.Appointment.Meeting
	if job.BookingType.NeedsVideoMeeting() && info.MeetingLink == "" {
		info = r.createMeeting(ctx, log, job)
	}

	if !info.IsZero() {
		err := r.store.UpdateMeeting(ctx, job.Appointment.ID, info)
		metrics.IncSideEffect(StepPatch, err == nil)
		if err != nil {
			log.Error("appointment meeting patch failed", "err", err)
		}
	}

	r.sendConfirmation(log, job, info)
	return info
}

func (r *Runner) createMeeting(ctx context.Context, log *slog.Logger, job Job) model.MeetingInfo {
	integrations, err := r.store.Integrations(ctx, job.Host.ID)
	if err != nil {
		log.Error("load integrations failed", "err", err)
	}
	req := meetingRequest(job)

	var info model.MeetingInfo
	if in, ok := model.FindIntegration(integrations, model.ProviderZoom); ok && r.zoom != nil {
		orig := in
		m, err := r.zoom.CreateMeeting(ctx, &in, req)
		r.saveToken(ctx, log, orig, in)
		metrics.IncSideEffect(StepZoom, err == nil)
		if err != nil {
			log.Error("zoom meeting creation failed", "err", err)
		} else {
			info = m
		}
	}

	if in, ok := model.FindIntegration(integrations, model.ProviderGoogleCalendar); ok && r.calendar != nil {
		withConference := info.MeetingLink == ""
		orig := in
		ev, err := r.calendar.CreateEvent(ctx, &in, req, withConference)
		r.saveToken(ctx, log, orig, in)
		metrics.IncSideEffect(StepCalendar, err == nil)
		if err != nil {
			log.Error("calendar event creation failed", "err", err)
		} else {
			info.CalendarEventID = ev.CalendarEventID
			if withConference && ev.MeetingLink != "" {
				info.MeetingLink = ev.MeetingLink
				info.MeetingID = ev.MeetingID
			}
		}
	}

	if info.MeetingLink == "" {
		info.MeetingLink = r.placeholderBase + r.slug()
		log.Info("using placeholder meeting link")
	}
	return info
}

// saveToken persists in when a provider call refreshed it. The refresh may
// have rotated the refresh token, so this runs even if the call itself failed.
func (r *Runner) saveToken(ctx context.Context, log *slog.Logger, orig, in model.Integration) {
	if in.AccessToken == orig.AccessToken && in.RefreshToken == orig.RefreshToken && in.ExpiresAt.Equal(orig.ExpiresAt) {
		return
	}
	err := r.store.UpdateIntegrationToken(ctx, in)
	metrics.IncSideEffect(StepToken, err == nil)
	if err != nil {
		log.Error("persist refreshed token failed", "provider", in.Provider, "err", err)
	}
}

func (r *Runner) sendConfirmation(log *slog.Logger, job Job, info model.MeetingInfo) {
	if r.mailer == nil || job.Appointment.GuestEmail == "" {
		return
	}
	timezone := job.Appointment.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	subject, body, err := email.Confirmation{
		GuestName:     job.Appointment.GuestName,
		BookingName:   job.BookingType.Name,
		HostName:      job.Host.Name,
		Start:         job.Appointment.StartTime,
		End:           job.Appointment.EndTime,
		Timezone:      timezone,
		MeetingLink:   info.MeetingLink,
		CancelURL:     job.CancelURL,
		RescheduleURL: job.RescheduleURL,
		Pending:       job.Appointment.Status == model.StatusScheduled,
	}.Render()
	if err == nil {
		err = r.mailer.Send(job.Appointment.GuestEmail, subject, body)
	}
	metrics.IncSideEffect(StepEmail, err == nil)
	if err != nil {
		log.Error("confirmation email failed", "err", err)
	}
}

func meetingRequest(job Job) model.MeetingRequest {
	topic := job.BookingType.Name
	if job.Appointment.GuestName != "" {
		topic = fmt.Sprintf("%s with %s", job.BookingType.Name, job.Appointment.GuestName)
	}
	return model.MeetingRequest{
		AppointmentID: job.Appointment.ID,
		Topic:         topic,
		Description:   job.Appointment.Notes,
		Start:         job.Appointment.StartTime,
		End:           job.Appointment.EndTime,
		Timezone:      job.Appointment.Timezone,
		AttendeeName:  job.Appointment.GuestName,
		AttendeeEmail: job.Appointment.GuestEmail,
	}
}

const slugLetters = "abcdefghijklmnopqrstuvwxyz"

// placeholderSlug returns three dash-separated blocks of three letters.
func placeholderSlug() string {
	var b strings.Builder
	for i := 0; i < 3; i++ {
		if i > 0 {
			b.WriteByte('-')
		}
		for j := 0; j < 3; j++ {
			b.WriteByte(slugLetters[rand.IntN(len(slugLetters))])
		}
	}
	return b.String()
}
