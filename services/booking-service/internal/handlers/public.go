package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/agencyhub/libs/httpx"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/slug"
)

const (
	msgFetchFailed  = "Failed to fetch booking info"
	msgCreateFailed = "Failed to create booking"
	msgNoHost       = "No available host for this booking"
	msgConflict     = "This time slot is no longer available"
)

// PublicBookingPattern is the path served for both slug shapes.
const PublicBookingPattern = "/api/v1/public/book/{segments...}"

type PublicBookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewPublicBookingHandler(svc *booking.Service, logger *slog.Logger) *PublicBookingHandler {
	return &PublicBookingHandler{svc: svc, logger: logger}
}

// Register mounts GET and POST on mux. wrap, when set, decorates both routes.
func (h *PublicBookingHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	get, post := http.Handler(http.HandlerFunc(h.Get)), http.Handler(http.HandlerFunc(h.Create))
	if wrap != nil {
		get, post = wrap(get), wrap(post)
	}
	mux.Handle("GET "+PublicBookingPattern, get)
	mux.Handle("POST "+PublicBookingPattern, post)
}

type bookingTypeView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Duration      int             `json:"duration"`
	Color         string          `json:"color"`
	Questions     json.RawMessage `json:"questions"`
	MinNotice     int             `json:"minNotice"`
	MaxFutureDays int             `json:"maxFutureDays"`
	LocationType  string          `json:"locationType"`
}

type tenantView struct {
	Name         string `json:"name"`
	Logo         string `json:"logo"`
	PrimaryColor string `json:"primaryColor"`
}

type hostView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type slotView struct {
	Time   string `json:"time"`
	HostID string `json:"hostId"`
}

type infoResponse struct {
	BookingType   bookingTypeView `json:"bookingType"`
	Tenant        tenantView      `json:"tenant"`
	Timezone      string          `json:"timezone"`
	Hosts         []hostView      `json:"hosts"`
	Date          string          `json:"date,omitempty"`
	Slots         *[]slotView     `json:"slots,omitempty"`
	Month         string          `json:"month,omitempty"`
	AvailableDays *[]string       `json:"availableDays,omitempty"`
}

func (h *PublicBookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, err := h.svc.Info(ctx, slug.Split(r.PathValue("segments")))
	if err != nil {
		h.writeError(w, err, msgFetchFailed)
		return
	}

	bt := info.Target.BookingType
	resp := infoResponse{
		BookingType: bookingTypeView{
			ID:            bt.ID,
			Name:          bt.Name,
			Description:   bt.Description,
			Duration:      bt.DurationMinutes,
			Color:         bt.Color,
			Questions:     bt.Questions,
			MinNotice:     bt.MinNoticeHours,
			MaxFutureDays: bt.MaxFutureDays,
			LocationType:  string(bt.LocationType),
		},
		Tenant: tenantView{
			Name:         info.Target.Tenant.Name,
			Logo:         info.Target.Tenant.LogoURL,
			PrimaryColor: info.Target.Tenant.PrimaryColor,
		},
		Timezone: info.Timezone(),
		Hosts:    make([]hostView, 0, len(info.Target.Hosts)),
	}
	for _, host := range info.Target.Hosts {
		resp.Hosts = append(resp.Hosts, hostView{ID: host.ID, Name: host.Name})
	}

	q := r.URL.Query()
	switch {
	case q.Get("date") != "":
		day, err := availability.ParseDate(q.Get("date"))
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid date format")
			return
		}
		slots, err := h.svc.Slots(ctx, info, day)
		if err != nil {
			h.writeError(w, err, msgFetchFailed)
			return
		}
		views := make([]slotView, 0, len(slots))
		for _, s := range slots {
			views = append(views, slotView{Time: s.Time.UTC().Format(time.RFC3339), HostID: s.HostID})
		}
		resp.Date = day.String()
		resp.Slots = &views
		metrics.IncAvailability("slots")
	case q.Get("month") != "":
		month, err := availability.ParseMonth(q.Get("month"))
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "Invalid month format")
			return
		}
		days := h.svc.Days(info, month)
		views := make([]string, 0, len(days))
		for _, d := range days {
			views = append(views, d.String())
		}
		resp.Month = month.String()
		resp.AvailableDays = &views
		metrics.IncAvailability("days")
	default:
		metrics.IncAvailability("info")
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

type createRequest struct {
	GuestName     string          `json:"guestName"`
	GuestEmail    string          `json:"guestEmail"`
	GuestPhone    string          `json:"guestPhone"`
	GuestCompany  string          `json:"guestCompany"`
	StartTime     string          `json:"startTime"`
	ClientID      string          `json:"clientId"`
	GuestTimezone string          `json:"guestTimezone"`
	Notes         string          `json:"notes"`
	FormResponses json.RawMessage `json:"formResponses"`
	HostUserID    string          `json:"hostUserId"`
}

type appointmentView struct {
	ID            string              `json:"id"`
	BookingType   bookingTypeSummary  `json:"bookingType"`
	StartTime     string              `json:"startTime"`
	EndTime       string              `json:"endTime"`
	Status        string              `json:"status"`
	MeetingLink   *string             `json:"meetingLink"`
	Host          appointmentHostView `json:"host"`
	Timezone      string              `json:"timezone"`
	CancelURL     string              `json:"cancelUrl"`
	RescheduleURL string              `json:"rescheduleUrl"`
}

type bookingTypeSummary struct {
	Name     string `json:"name"`
	Duration int    `json:"duration"`
}

type appointmentHostView struct {
	Name string `json:"name"`
}

type createResponse struct {
	Success     bool            `json:"success"`
	Appointment appointmentView `json:"appointment"`
}

func (h *PublicBookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.svc.Book(r.Context(), slug.Split(r.PathValue("segments")), booking.Request{
		GuestName:     req.GuestName,
		GuestEmail:    req.GuestEmail,
		GuestPhone:    req.GuestPhone,
		GuestCompany:  req.GuestCompany,
		StartTime:     req.StartTime,
		ClientID:      req.ClientID,
		GuestTimezone: req.GuestTimezone,
		Notes:         req.Notes,
		FormResponses: req.FormResponses,
		HostUserID:    req.HostUserID,
		Origin:        r.Header.Get("Origin"),
	})
	if err != nil {
		h.writeError(w, err, msgCreateFailed)
		return
	}

	appt := res.Appointment
	view := appointmentView{
		ID:            appt.ID,
		BookingType:   bookingTypeSummary{Name: res.BookingType.Name, Duration: res.BookingType.DurationMinutes},
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        string(appt.Status),
		Host:          appointmentHostView{Name: res.Host.Name},
		Timezone:      appt.Timezone,
		CancelURL:     res.CancelURL,
		RescheduleURL: res.RescheduleURL,
	}
	if link := appt.Meeting.MeetingLink; link != "" {
		view.MeetingLink = &link
	}
	httpx.WriteJSON(w, http.StatusOK, createResponse{Success: true, Appointment: view})
}

// writeError maps resolution and booking errors to their public status and
// message. Anything unrecognized is logged and reported as fallback.
func (h *PublicBookingHandler) writeError(w http.ResponseWriter, err error, fallback string) {
	var ve *booking.ValidationError
	switch {
	case errors.Is(err, slug.ErrBookingTypeNotFound):
		httpx.WriteError(w, http.StatusNotFound, "Booking type not found")
	case errors.Is(err, slug.ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, slug.ErrInvalidURL):
		httpx.WriteError(w, http.StatusNotFound, "Invalid URL format")
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusBadRequest, ve.Message)
	case errors.Is(err, booking.ErrNoHostAvailable):
		httpx.WriteError(w, http.StatusBadRequest, msgNoHost)
	case errors.Is(err, booking.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, msgConflict)
	default:
		h.logger.Error(fallback, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, fallback)
	}
}
