package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/sideeffects"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/slug"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SideEffects runs post-commit work for a booked appointment and reports the
// meeting identifiers obtained. Implementations must not fail the booking.
type SideEffects interface {
	Run(ctx context.Context, job sideeffects.Job) model.MeetingInfo
}

type Service struct {
	store    storage.Store
	resolver *slug.Resolver
	effects  SideEffects
	logger   *slog.Logger
	now      func() time.Time
	baseURL  string
	tracer   trace.Tracer
	// effectsWait caps how long Book waits on side effects before responding.
	effectsWait time.Duration
}

// DefaultSideEffectsWait is how long Book waits for side effects by default.
const DefaultSideEffectsWait = 5 * time.Second

type Option func(*Service)

// WithClock replaces the wall clock used for notice windows and host load.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithSideEffects(e SideEffects) Option {
	return func(s *Service) { s.effects = e }
}

// WithSideEffectsWait bounds how long Book blocks on side effects. Work still
// running after d continues in the background and the response goes out
// without the meeting link. A non-positive d waits until they finish.
func WithSideEffectsWait(d time.Duration) Option {
	return func(s *Service) { s.effectsWait = d }
}

// WithBaseURL sets the origin used for manage links when a request has none.
func WithBaseURL(url string) Option {
	return func(s *Service) { s.baseURL = url }
}

func NewService(store storage.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: slug.NewResolver(store),
		effects:  sideeffects.Deferred{},
		logger:   logger,
		now:      time.Now,
		baseURL:  "http://localhost:3000",
		tracer:   otel.Tracer("booking"),

		effectsWait: DefaultSideEffectsWait,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Info is a resolved booking URL plus the template its availability is computed from.
type Info struct {
	Target   slug.Target
	Template model.AvailabilityTemplate
}

func (i Info) Timezone() string {
	return i.Template.TimezoneName()
}

func (s *Service) input(info Info) availability.Input {
	return availability.Input{
		BookingType: info.Target.BookingType,
		HostIDs:     info.Target.HostIDs(),
		Template:    info.Template,
		Now:         s.now(),
	}
}

// Info resolves segments and loads the availability template. A tenant
// without a template gets an empty schedule in UTC.
func (s *Service) Info(ctx context.Context, segments []string) (Info, error) {
	target, err := s.resolver.Resolve(ctx, segments)
	if err != nil {
		return Info{}, err
	}
	tpl, err := s.store.AvailabilityTemplate(ctx, target.BookingType.TenantID)
	if errors.Is(err, storage.ErrNotFound) {
		tpl = model.AvailabilityTemplate{TenantID: target.BookingType.TenantID}
	} else if err != nil {
		return Info{}, fmt.Errorf("availability template: %w", err)
	}
	return Info{Target: target, Template: tpl}, nil
}

// Slots lists bookable start times on day.
func (s *Service) Slots(ctx context.Context, info Info, day availability.Date) ([]availability.Slot, error) {
	ctx, span := s.tracer.Start(ctx, "booking.slots", trace.WithAttributes(
		attribute.String("booking_type_id", info.Target.BookingType.ID),
		attribute.String("date", day.String()),
	))
	defer span.End()

	in := s.input(info)
	if len(in.HostIDs) == 0 || len(info.Template.PeriodsFor(day.Weekday())) == 0 {
		return nil, nil
	}

	from, to := day.Bounds(info.Template.Location())
	busy, err := s.store.ListBusy(ctx, info.Target.Scope(), from, to)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list busy: %w", err)
	}
	return availability.GenerateSlots(in, day, busy), nil
}

// Days lists the days of month that may have slots.
func (s *Service) Days(info Info, month availability.Month) []availability.Date {
	return availability.AvailableDays(s.input(info), month)
}
