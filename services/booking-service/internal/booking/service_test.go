package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/sideeffects"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/slug"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-01-26 is a Monday.
var (
	now    = time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	monday = availability.Date{Year: 2026, Month: time.January, Day: 26}
)

func at(h, m int) time.Time {
	return time.Date(2026, 1, 26, h, m, 0, 0, time.UTC)
}

type recordingEffects struct {
	mu   sync.Mutex
	jobs []sideeffects.Job
}

func (r *recordingEffects) Run(_ context.Context, job sideeffects.Job) model.MeetingInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return model.MeetingInfo{MeetingLink: "https://meet.test/" + job.Appointment.ID}
}

func fixture() *memory.Store {
	s := memory.New()
	s.AddTenant(model.Tenant{ID: "t1", Name: "Acme", PrimaryColor: "#123456"})
	for _, u := range []model.User{
		{ID: "u1", TenantID: "t1", Name: "Ana", BookingSlug: "ana", Role: model.RoleAdmin, IsActive: true},
		{ID: "u2", TenantID: "t1", Name: "Ben", BookingSlug: "ben", Role: model.RoleMember, IsActive: true},
		{ID: "u3", TenantID: "t1", Name: "Cy", BookingSlug: "cy", Role: model.RoleManager, IsActive: true},
	} {
		s.AddUser(u)
	}
	s.SetTemplate(model.AvailabilityTemplate{
		TenantID: "t1",
		Timezone: "UTC",
		WeeklySchedule: map[string][]model.Period{
			"monday": {{Start: "09:00", End: "12:00"}},
		},
	})
	s.AddBookingType(model.BookingType{ID: "solo", TenantID: "t1", Slug: "solo", Name: "Solo", DurationMinutes: 30,
		BufferAfterMinutes: 15, IsActive: true, AssignmentType: model.AssignmentFixed, SpecificHostID: "u1", MaxFutureDays: 60})
	s.AddBookingType(model.BookingType{ID: "team", TenantID: "t1", Slug: "team", Name: "Team", DurationMinutes: 30,
		IsActive: true, AssignmentType: model.AssignmentRoundRobin, MaxFutureDays: 60,
		AssignedHosts: []model.AssignedHost{{UserID: "u1", Priority: 1}, {UserID: "u2", Priority: 2}, {UserID: "u3", Priority: 3}}})
	s.AddBookingType(model.BookingType{ID: "review", TenantID: "t1", Slug: "review", Name: "Review", DurationMinutes: 60,
		IsActive: true, RequiresApproval: true, SpecificHostID: "u2"})
	s.AddBookingType(model.BookingType{ID: "off", TenantID: "t1", Slug: "off", Name: "Off", DurationMinutes: 30, IsActive: false})

	s.AddTenant(model.Tenant{ID: "t2", Name: "Viewers only"})
	s.AddUser(model.User{ID: "v1", TenantID: "t2", Name: "Vic", Role: model.RoleViewer, IsActive: true})
	s.AddBookingType(model.BookingType{ID: "nohost", TenantID: "t2", Slug: "nohost", Name: "No host", DurationMinutes: 30, IsActive: true})
	return s
}

func newService(s *memory.Store, effects SideEffects) *Service {
	opts := []Option{WithClock(func() time.Time { return now }), WithBaseURL("https://app.test/")}
	if effects != nil {
		opts = append(opts, WithSideEffects(effects))
	}
	return NewService(s, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func guest(start time.Time) Request {
	return Request{GuestName: "Gia", GuestEmail: "gia@example.test", StartTime: start.Format(time.RFC3339)}
}

func slotTimes(slots []availability.Slot) []time.Time {
	out := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Time)
	}
	return out
}

func TestSlotsRespectExistingBuffer(t *testing.T) {
	ctx := context.Background()
	store := fixture()
	svc := newService(store, nil)

	info, err := svc.Info(ctx, []string{"solo"})
	require.NoError(t, err)
	assert.Equal(t, "UTC", info.Timezone())

	slots, err := svc.Slots(ctx, info, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 6)

	_, err = svc.Book(ctx, []string{"solo"}, guest(at(9, 0)))
	require.NoError(t, err)

	slots, err = svc.Slots(ctx, info, monday)
	require.NoError(t, err)
	times := slotTimes(slots)
	for _, tm := range times {
		assert.False(t, tm.Before(at(9, 45)), "slot %s starts inside the buffer", tm)
	}
	assert.Equal(t, at(10, 0), times[0])
	assert.Equal(t, "u1", slots[0].HostID)
}

func TestReadsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newService(fixture(), nil)
	info, err := svc.Info(ctx, []string{"team"})
	require.NoError(t, err)

	first, err := svc.Slots(ctx, info, monday)
	require.NoError(t, err)
	second, err := svc.Slots(ctx, info, monday)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	month := availability.Month{Year: 2026, Month: time.January}
	assert.Equal(t, svc.Days(info, month), svc.Days(info, month))
	assert.Equal(t, []availability.Date{{Year: 2026, Month: time.January, Day: 26}}, svc.Days(info, month))
}

func TestBookCreatesConfirmedAppointment(t *testing.T) {
	ctx := context.Background()
	store := fixture()
	effects := &recordingEffects{}
	svc := newService(store, effects)

	req := guest(at(10, 0))
	req.Origin = "https://portal.acme.test"
	req.FormResponses = []byte(`{"size":"10"}`)
	res, err := svc.Book(ctx, []string{"solo"}, req)
	require.NoError(t, err)

	appt := res.Appointment
	assert.Equal(t, model.StatusConfirmed, appt.Status)
	assert.Equal(t, "u1", appt.HostID)
	assert.Equal(t, at(10, 30), appt.EndTime)
	assert.Equal(t, "UTC", appt.Timezone)
	assert.Equal(t, "https://meet.test/"+appt.ID, appt.Meeting.MeetingLink)
	assert.Equal(t, "https://portal.acme.test/book/manage/"+appt.ID, res.CancelURL)
	assert.Equal(t, res.CancelURL+"?action=reschedule", res.RescheduleURL)

	require.Len(t, effects.jobs, 1)
	assert.Equal(t, "Ana", effects.jobs[0].Host.Name)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.EventAppointmentBooked, events[0].EventType)
	assert.Equal(t, appt.ID, events[0].AggregateID)
	assert.Contains(t, string(events[0].Payload), res.CancelURL)
}

func TestBookRequiresApprovalStartsScheduled(t *testing.T) {
	res, err := newService(fixture(), nil).Book(context.Background(), []string{"review"}, guest(at(9, 0)))
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, res.Appointment.Status)
	assert.Equal(t, "https://app.test/book/manage/"+res.Appointment.ID, res.CancelURL)
}

func TestBookValidation(t *testing.T) {
	svc := newService(fixture(), nil)
	tests := []struct {
		name string
		req  Request
		msg  string
	}{
		{"missing name", Request{GuestEmail: "a@b.test", StartTime: at(9, 0).Format(time.RFC3339)}, MsgRequiredFields},
		{"missing email", Request{GuestName: "A", StartTime: at(9, 0).Format(time.RFC3339)}, MsgRequiredFields},
		{"missing time", Request{GuestName: "A", GuestEmail: "a@b.test"}, MsgRequiredFields},
		{"bad email", Request{GuestName: "A", GuestEmail: "not-an-email", StartTime: at(9, 0).Format(time.RFC3339)}, "Invalid email address"},
		{"bad time", Request{GuestName: "A", GuestEmail: "a@b.test", StartTime: "tomorrow"}, "Invalid time slot"},
		{"bad form", Request{GuestName: "A", GuestEmail: "a@b.test", StartTime: at(9, 0).Format(time.RFC3339), FormResponses: []byte("{")}, "Invalid form responses"},
		{"bad client id", Request{GuestName: "A", GuestEmail: "a@b.test", StartTime: at(9, 0).Format(time.RFC3339), ClientID: "acme-client"}, "Invalid client id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), []string{"solo"}, tt.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.msg, ve.Message)
		})
	}
}

func TestBookNormalizesClientID(t *testing.T) {
	req := guest(at(9, 0))
	req.ClientID = " 6F9619FF-8B86-D011-B42D-00C04FC964FF "
	res, err := newService(fixture(), nil).Book(context.Background(), []string{"solo"}, req)
	require.NoError(t, err)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", res.Appointment.ClientID)
}

func TestBookGuestTimezone(t *testing.T) {
	tests := []struct {
		name string
		tz   string
		want string
	}{
		{"iana zone kept", "Europe/Berlin", "Europe/Berlin"},
		{"empty uses template", "", "UTC"},
		{"unknown uses template", "Mars/Olympus_Mons", "UTC"},
		{"local uses template", "Local", "UTC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := guest(at(9, 0))
			req.GuestTimezone = tt.tz
			res, err := newService(fixture(), nil).Book(context.Background(), []string{"solo"}, req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Appointment.Timezone)
		})
	}
}

type blockingEffects struct {
	release chan struct{}
}

func (b blockingEffects) Run(context.Context, sideeffects.Job) model.MeetingInfo {
	<-b.release
	return model.MeetingInfo{MeetingLink: "https://meet.test/late"}
}

func TestBookRespondsWhenSideEffectsOutlastWait(t *testing.T) {
	store := fixture()
	effects := blockingEffects{release: make(chan struct{})}
	defer close(effects.release)
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return now }),
		WithSideEffects(effects),
		WithSideEffectsWait(20*time.Millisecond),
	)

	start := time.Now()
	res, err := svc.Book(context.Background(), []string{"solo"}, guest(at(9, 0)))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, res.Appointment.Meeting.MeetingLink)
	assert.Len(t, store.Appointments(), 1)
}

func TestInactiveBookingTypeIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newService(fixture(), nil)

	_, err := svc.Info(ctx, []string{"off"})
	assert.ErrorIs(t, err, slug.ErrBookingTypeNotFound)
	_, err = svc.Book(ctx, []string{"off"}, guest(at(9, 0)))
	assert.ErrorIs(t, err, slug.ErrBookingTypeNotFound)
	_, err = svc.Book(ctx, []string{"off"}, Request{})
	assert.ErrorIs(t, err, slug.ErrBookingTypeNotFound)
	_, err = svc.Book(ctx, []string{"ana", "off"}, guest(at(9, 0)))
	assert.ErrorIs(t, err, slug.ErrBookingTypeNotFound)
}

func TestBookConflictIsTenantWideForPooledTypes(t *testing.T) {
	ctx := context.Background()
	svc := newService(fixture(), nil)

	_, err := svc.Book(ctx, []string{"team"}, guest(at(9, 0)))
	require.NoError(t, err)

	_, err = svc.Book(ctx, []string{"team"}, guest(at(9, 15)))
	assert.ErrorIs(t, err, ErrConflict)

	// The user-prefixed scope only looks at that user's calendar.
	res, err := svc.Book(ctx, []string{"ben", "team"}, guest(at(9, 0)))
	require.NoError(t, err)
	assert.Equal(t, "u2", res.Host.ID)
}

func TestBookRaceExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := fixture()
	svc := newService(store, nil)

	const n = 2
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(ctx, []string{"solo"}, guest(at(11, 0)))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, store.Appointments(), 1)
}

func TestRoundRobinFairness(t *testing.T) {
	ctx := context.Background()
	svc := newService(fixture(), nil)

	var hosts []string
	for i, start := range []time.Time{at(9, 0), at(9, 30), at(10, 0), at(10, 30)} {
		res, err := svc.Book(ctx, []string{"team"}, guest(start))
		require.NoError(t, err, "booking %d", i)
		hosts = append(hosts, res.Host.ID)
	}
	assert.Equal(t, []string{"u1", "u2", "u3", "u1"}, hosts)
}

func TestUserPrefixedOverridesAssignment(t *testing.T) {
	ctx := context.Background()
	svc := newService(fixture(), nil)

	for _, start := range []time.Time{at(9, 0), at(9, 30), at(10, 0)} {
		res, err := svc.Book(ctx, []string{"cy", "team"}, guest(start))
		require.NoError(t, err)
		assert.Equal(t, "u3", res.Host.ID)
	}
}

func TestNoHostAvailable(t *testing.T) {
	ctx := context.Background()
	store := fixture()
	svc := newService(store, nil)

	_, err := svc.Book(ctx, []string{"nohost"}, guest(at(9, 0)))
	assert.ErrorIs(t, err, ErrNoHostAvailable)

	req := guest(at(9, 0))
	req.HostUserID = "u1"
	_, err = svc.Book(ctx, []string{"nohost"}, req)
	assert.ErrorIs(t, err, ErrNoHostAvailable, "host from another tenant is not a fallback")

	req.HostUserID = "v1"
	res, err := svc.Book(ctx, []string{"nohost"}, req)
	require.NoError(t, err)
	assert.Equal(t, "v1", res.Host.ID)
}

func TestSlotsWithNoHostsOrTemplate(t *testing.T) {
	ctx := context.Background()
	svc := newService(fixture(), nil)

	info, err := svc.Info(ctx, []string{"nohost"})
	require.NoError(t, err)
	assert.Equal(t, "UTC", info.Timezone())
	slots, err := svc.Slots(ctx, info, monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}
