package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/agencyhub/libs/httpx"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/sideeffects"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)

func seedStore() *memory.Store {
	s := memory.New()
	s.AddTenant(model.Tenant{ID: "t1", Name: "Acme", LogoURL: "https://cdn.test/logo.png", PrimaryColor: "#ff0000"})
	s.AddUser(model.User{ID: "u1", TenantID: "t1", Name: "Ana", BookingSlug: "ana", Role: model.RoleAdmin, IsActive: true})
	s.AddUser(model.User{ID: "u2", TenantID: "t1", Name: "Ben", BookingSlug: "ben", Role: model.RoleMember, IsActive: true})
	s.SetTemplate(model.AvailabilityTemplate{
		TenantID:       "t1",
		Timezone:       "UTC",
		WeeklySchedule: map[string][]model.Period{"monday": {{Start: "09:00", End: "10:00"}}},
	})
	s.AddBookingType(model.BookingType{ID: "bt1", TenantID: "t1", Slug: "intro", Name: "Intro call", DurationMinutes: 30,
		IsActive: true, AssignmentType: model.AssignmentFixed, SpecificHostID: "u1", MaxFutureDays: 30,
		Questions: json.RawMessage(`[{"label":"Topic"}]`)})
	s.AddBookingType(model.BookingType{ID: "bt2", TenantID: "t1", Slug: "old", Name: "Old", DurationMinutes: 30, IsActive: false})

	s.AddTenant(model.Tenant{ID: "t2", Name: "Empty"})
	s.AddBookingType(model.BookingType{ID: "bt3", TenantID: "t2", Slug: "empty", Name: "Empty", DurationMinutes: 30, IsActive: true})
	return s
}

type failingBusy struct {
	*memory.Store
}

func (failingBusy) ListBusy(context.Context, model.Scope, time.Time, time.Time) ([]model.Busy, error) {
	return nil, errors.New("db down")
}

func newServer(t *testing.T, store storage.Store, opts ...booking.Option) *httptest.Server {
	t.Helper()
	return newChainedServer(t, store, nil, opts...)
}

// newChainedServer serves the handler behind the given middleware chain.
func newChainedServer(t *testing.T, store storage.Store, mws []httpx.Middleware, opts ...booking.Option) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]booking.Option{
		booking.WithClock(func() time.Time { return now }),
		booking.WithBaseURL("https://app.test"),
	}, opts...)
	svc := booking.NewService(store, logger, opts...)
	mux := http.NewServeMux()
	NewPublicBookingHandler(svc, logger).Register(mux, nil)
	srv := httptest.NewServer(httpx.Chain(mux, mws...))
	t.Cleanup(srv.Close)
	return srv
}

type slowMailer struct {
	delay time.Duration
}

func (m slowMailer) Send(string, string, string) error {
	time.Sleep(m.delay)
	return nil
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func postJSON(t *testing.T, url, origin, payload string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

const base = "/api/v1/public/book/"

func TestGetInfo(t *testing.T) {
	srv := newServer(t, seedStore())

	status, body := getJSON(t, srv.URL+base+"intro")
	require.Equal(t, http.StatusOK, status)
	bt := body["bookingType"].(map[string]any)
	assert.Equal(t, "Intro call", bt["name"])
	assert.Equal(t, float64(30), bt["duration"])
	assert.Equal(t, float64(30), bt["maxFutureDays"])
	assert.NotNil(t, bt["questions"])
	assert.Equal(t, "Acme", body["tenant"].(map[string]any)["name"])
	assert.Equal(t, "UTC", body["timezone"])
	assert.Equal(t, []any{map[string]any{"id": "u1", "name": "Ana"}}, body["hosts"])
	assert.NotContains(t, body, "slots")
	assert.NotContains(t, body, "availableDays")
}

func TestGetSlotsAndDays(t *testing.T) {
	srv := newServer(t, seedStore())

	status, body := getJSON(t, srv.URL+base+"intro?date=2026-01-26")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2026-01-26", body["date"])
	assert.Equal(t, []any{
		map[string]any{"time": "2026-01-26T09:00:00Z", "hostId": "u1"},
		map[string]any{"time": "2026-01-26T09:30:00Z", "hostId": "u1"},
	}, body["slots"])

	status, body = getJSON(t, srv.URL+base+"intro?date=2026-01-27")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["slots"])

	status, body = getJSON(t, srv.URL+base+"ana/intro?month=2026-02")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2026-02", body["month"])
	assert.Equal(t, []any{"2026-02-02", "2026-02-09", "2026-02-16"}, body["availableDays"])
}

func TestGetErrors(t *testing.T) {
	srv := newServer(t, seedStore())

	tests := []struct {
		path   string
		status int
		msg    string
	}{
		{"old", http.StatusNotFound, "Booking type not found"},
		{"missing", http.StatusNotFound, "Booking type not found"},
		{"nobody/intro", http.StatusNotFound, "User not found"},
		{"ana/old", http.StatusNotFound, "Booking type not found"},
		{"a/b/c", http.StatusNotFound, "Invalid URL format"},
		{"intro?date=26-01-2026", http.StatusBadRequest, "Invalid date format"},
		{"intro?month=2026-13", http.StatusBadRequest, "Invalid month format"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := getJSON(t, srv.URL+base+tt.path)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestGetStorageFailure(t *testing.T) {
	srv := newServer(t, failingBusy{seedStore()})

	status, body := getJSON(t, srv.URL+base+"intro?date=2026-01-26")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to fetch booking info", body["error"])
}

func TestCreateBooking(t *testing.T) {
	store := seedStore()
	srv := newServer(t, store)

	status, body := postJSON(t, srv.URL+base+"intro", "https://portal.acme.test",
		`{"guestName":"Gia","guestEmail":"gia@example.test","startTime":"2026-01-26T09:30:00Z","guestTimezone":"Europe/Berlin","formResponses":{"topic":"seo"}}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])

	appt := body["appointment"].(map[string]any)
	id := appt["id"].(string)
	assert.Equal(t, "2026-01-26T09:30:00Z", appt["startTime"])
	assert.Equal(t, "2026-01-26T10:00:00Z", appt["endTime"])
	assert.Equal(t, "CONFIRMED", appt["status"])
	assert.Nil(t, appt["meetingLink"])
	assert.Equal(t, map[string]any{"name": "Ana"}, appt["host"])
	assert.Equal(t, map[string]any{"name": "Intro call", "duration": float64(30)}, appt["bookingType"])
	assert.Equal(t, "Europe/Berlin", appt["timezone"])
	assert.Equal(t, "https://portal.acme.test/book/manage/"+id, appt["cancelUrl"])
	assert.Equal(t, "https://portal.acme.test/book/manage/"+id+"?action=reschedule", appt["rescheduleUrl"])

	stored, err := store.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"seo"}`, string(stored.FormResponses))

	_, slots := getJSON(t, srv.URL+base+"intro?date=2026-01-26")
	assert.Len(t, slots["slots"], 1)
}

func TestCreateBookingSlowSideEffectsInsideRequestTimeout(t *testing.T) {
	store := seedStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := sideeffects.NewRunner(store, logger, sideeffects.Config{Mailer: slowMailer{delay: 500 * time.Millisecond}})
	srv := newChainedServer(t, store,
		[]httpx.Middleware{httpx.WithTimeout(200 * time.Millisecond)},
		booking.WithSideEffects(runner),
		booking.WithSideEffectsWait(50*time.Millisecond),
	)

	status, body := postJSON(t, srv.URL+base+"intro", "",
		`{"guestName":"A","guestEmail":"a@b.test","startTime":"2026-01-26T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Len(t, store.Appointments(), 1)
}

func TestCreateBookingErrors(t *testing.T) {
	srv := newServer(t, seedStore())

	status, _ := postJSON(t, srv.URL+base+"intro", "", `{"guestName":"A","guestEmail":"a@b.test","startTime":"2026-01-26T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, status)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		msg    string
	}{
		{"missing fields", "intro", `{"guestName":"A"}`, http.StatusBadRequest, "Name, email, and time slot are required"},
		{"bad json", "intro", `{`, http.StatusBadRequest, "Invalid request body"},
		{"conflict", "intro", `{"guestName":"B","guestEmail":"b@b.test","startTime":"2026-01-26T09:15:00Z"}`, http.StatusConflict, "This time slot is no longer available"},
		{"inactive", "old", `{"guestName":"B","guestEmail":"b@b.test","startTime":"2026-01-26T09:00:00Z"}`, http.StatusNotFound, "Booking type not found"},
		{"no host", "empty", `{"guestName":"B","guestEmail":"b@b.test","startTime":"2026-01-26T09:00:00Z"}`, http.StatusBadRequest, "No available host for this booking"},
		{"unknown user", "zed/intro", `{"guestName":"B","guestEmail":"b@b.test","startTime":"2026-01-26T09:00:00Z"}`, http.StatusNotFound, "User not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postJSON(t, srv.URL+base+tt.path, "", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestConcurrentCreateOneConflict(t *testing.T) {
	srv := newServer(t, seedStore())

	var wg sync.WaitGroup
	statuses := make([]int, 2)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, srv.URL+base+"intro",
				strings.NewReader(`{"guestName":"G","guestEmail":"g@example.test","startTime":"2026-01-26T09:00:00Z"}`))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusConflict}, statuses)
}
