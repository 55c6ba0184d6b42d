package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML document accepted by Seed.
type Fixture struct {
	Tenants      []fixtureTenant      `yaml:"tenants"`
	Users        []fixtureUser        `yaml:"users"`
	BookingTypes []fixtureBookingType `yaml:"booking_types"`
	Templates    []fixtureTemplate    `yaml:"templates"`
	Integrations []fixtureIntegration `yaml:"integrations"`
	Appointments []fixtureAppointment `yaml:"appointments"`
}

type fixtureTenant struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	LogoURL      string `yaml:"logo_url"`
	PrimaryColor string `yaml:"primary_color"`
}

type fixtureUser struct {
	ID          string `yaml:"id"`
	TenantID    string `yaml:"tenant_id"`
	Name        string `yaml:"name"`
	Email       string `yaml:"email"`
	BookingSlug string `yaml:"booking_slug"`
	Role        string `yaml:"role"`
	Active      *bool  `yaml:"active"`
}

type fixtureHost struct {
	UserID   string `yaml:"user_id"`
	Priority int    `yaml:"priority"`
}

type fixtureBookingType struct {
	ID               string        `yaml:"id"`
	TenantID         string        `yaml:"tenant_id"`
	Slug             string        `yaml:"slug"`
	Name             string        `yaml:"name"`
	Description      string        `yaml:"description"`
	Color            string        `yaml:"color"`
	Duration         int           `yaml:"duration_minutes"`
	BufferBefore     int           `yaml:"buffer_before_minutes"`
	BufferAfter      int           `yaml:"buffer_after_minutes"`
	MinNoticeHours   int           `yaml:"min_notice_hours"`
	MaxFutureDays    int           `yaml:"max_future_days"`
	AssignmentType   string        `yaml:"assignment_type"`
	SpecificHostID   string        `yaml:"specific_host_id"`
	Hosts            []fixtureHost `yaml:"hosts"`
	Active           *bool         `yaml:"active"`
	RequiresApproval bool          `yaml:"requires_approval"`
	AutoCreateMeet   bool          `yaml:"auto_create_meet"`
	LocationType     string        `yaml:"location_type"`
	Questions        any           `yaml:"questions"`
}

type fixturePeriod struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type fixtureTemplate struct {
	TenantID string                     `yaml:"tenant_id"`
	Timezone string                     `yaml:"timezone"`
	Weekly   map[string][]fixturePeriod `yaml:"weekly_schedule"`
}

type fixtureIntegration struct {
	UserID       string    `yaml:"user_id"`
	Provider     string    `yaml:"provider"`
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token"`
	ExpiresAt    time.Time `yaml:"expires_at"`
	CalendarID   string    `yaml:"calendar_id"`
}

type fixtureAppointment struct {
	ID            string    `yaml:"id"`
	TenantID      string    `yaml:"tenant_id"`
	BookingTypeID string    `yaml:"booking_type_id"`
	HostID        string    `yaml:"host_id"`
	StartTime     time.Time `yaml:"start_time"`
	EndTime       time.Time `yaml:"end_time"`
	Status        string    `yaml:"status"`
	GuestName     string    `yaml:"guest_name"`
	GuestEmail    string    `yaml:"guest_email"`
}

// LoadFile reads a YAML fixture from path into a new Store.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := New()
	if err := s.Seed(f); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return s, nil
}

// Seed decodes a YAML fixture and adds its records to s.
func (s *Store) Seed(r io.Reader) error {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return err
	}

	for _, t := range fx.Tenants {
		s.AddTenant(model.Tenant{ID: t.ID, Name: t.Name, LogoURL: t.LogoURL, PrimaryColor: t.PrimaryColor})
	}
	for _, u := range fx.Users {
		role := model.Role(u.Role)
		if role == "" {
			role = model.RoleMember
		}
		s.AddUser(model.User{
			ID:          u.ID,
			TenantID:    u.TenantID,
			Name:        u.Name,
			Email:       u.Email,
			BookingSlug: u.BookingSlug,
			Role:        role,
			IsActive:    boolOr(u.Active, true),
		})
	}
	for _, b := range fx.BookingTypes {
		bt, err := b.toModel()
		if err != nil {
			return fmt.Errorf("booking type %q: %w", b.Slug, err)
		}
		s.AddBookingType(bt)
	}
	for _, t := range fx.Templates {
		weekly := make(map[string][]model.Period, len(t.Weekly))
		for day, periods := range t.Weekly {
			for _, p := range periods {
				weekly[day] = append(weekly[day], model.Period{Start: p.Start, End: p.End})
			}
		}
		s.SetTemplate(model.AvailabilityTemplate{TenantID: t.TenantID, Timezone: t.Timezone, WeeklySchedule: weekly})
	}
	for _, in := range fx.Integrations {
		s.AddIntegration(model.Integration{
			UserID:       in.UserID,
			Provider:     model.Provider(in.Provider),
			AccessToken:  in.AccessToken,
			RefreshToken: in.RefreshToken,
			ExpiresAt:    in.ExpiresAt,
			CalendarID:   in.CalendarID,
		})
	}
	for _, a := range fx.Appointments {
		status := model.Status(a.Status)
		if status == "" {
			status = model.StatusConfirmed
		}
		err := s.AddAppointment(model.Appointment{
			ID:            a.ID,
			TenantID:      a.TenantID,
			BookingTypeID: a.BookingTypeID,
			HostID:        a.HostID,
			StartTime:     a.StartTime,
			EndTime:       a.EndTime,
			Status:        status,
			GuestName:     a.GuestName,
			GuestEmail:    a.GuestEmail,
		})
		if err != nil {
			return fmt.Errorf("appointment %q: %w", a.ID, err)
		}
	}
	return nil
}

func (b fixtureBookingType) toModel() (model.BookingType, error) {
	bt := model.BookingType{
		ID:                  b.ID,
		TenantID:            b.TenantID,
		Slug:                b.Slug,
		Name:                b.Name,
		Description:         b.Description,
		Color:               b.Color,
		DurationMinutes:     b.Duration,
		BufferBeforeMinutes: b.BufferBefore,
		BufferAfterMinutes:  b.BufferAfter,
		MinNoticeHours:      b.MinNoticeHours,
		MaxFutureDays:       b.MaxFutureDays,
		AssignmentType:      model.AssignmentType(b.AssignmentType),
		SpecificHostID:      b.SpecificHostID,
		IsActive:            boolOr(b.Active, true),
		RequiresApproval:    b.RequiresApproval,
		AutoCreateMeet:      b.AutoCreateMeet,
		LocationType:        model.LocationType(b.LocationType),
	}
	if bt.AssignmentType == "" {
		bt.AssignmentType = model.AssignmentRoundRobin
	}
	if bt.LocationType == "" {
		bt.LocationType = model.LocationVideo
	}
	for _, h := range b.Hosts {
		bt.AssignedHosts = append(bt.AssignedHosts, model.AssignedHost{UserID: h.UserID, Priority: h.Priority})
	}
	if b.Questions != nil {
		raw, err := json.Marshal(b.Questions)
		if err != nil {
			return model.BookingType{}, err
		}
		bt.Questions = raw
	}
	return bt, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
