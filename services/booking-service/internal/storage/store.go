package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would leave two occupying
	// appointments overlapping in the same scope.
	ErrConflict = errors.New("appointment overlaps an existing booking")
)

// Catalog is the read-only configuration side of the store.
type Catalog interface {
	// BookingTypeBySlug looks a booking type up by slug across tenants.
	BookingTypeBySlug(ctx context.Context, slug string) (model.BookingType, error)
	BookingTypeBySlugInTenant(ctx context.Context, tenantID, slug string) (model.BookingType, error)
	BookingTypeByID(ctx context.Context, id string) (model.BookingType, error)
	UserByBookingSlug(ctx context.Context, slug string) (model.User, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	// ActiveUsers returns the active users of the tenant among ids, in the order of ids.
	ActiveUsers(ctx context.Context, tenantID string, ids []string) ([]model.User, error)
	// OperationalUsers returns active users holding a hosting role, oldest first.
	OperationalUsers(ctx context.Context, tenantID string) ([]model.User, error)
	Tenant(ctx context.Context, id string) (model.Tenant, error)
	AvailabilityTemplate(ctx context.Context, tenantID string) (model.AvailabilityTemplate, error)
	Integrations(ctx context.Context, userID string) ([]model.Integration, error)
}

type Store interface {
	Catalog
	// ListBusy returns occupying appointments in scope whose buffer-padded
	// interval intersects [from, to).
	ListBusy(ctx context.Context, scope model.Scope, from, to time.Time) ([]model.Busy, error)
	// RunInTx runs fn atomically. A conflicting concurrent write makes it
	// return ErrConflict.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateMeeting(ctx context.Context, appointmentID string, info model.MeetingInfo) error
	// UpdateIntegrationToken stores the token fields of in for its user and provider.
	UpdateIntegrationToken(ctx context.Context, in model.Integration) error
}

type Tx interface {
	// HasOverlap reports whether an occupying appointment in scope intersects [start, end).
	HasOverlap(ctx context.Context, scope model.Scope, start, end time.Time) (bool, error)
	// CountUpcomingByHost counts occupying appointments starting at or after from, per host.
	CountUpcomingByHost(ctx context.Context, tenantID string, hostIDs []string, from time.Time) (map[string]int, error)
	InsertAppointment(ctx context.Context, appt *model.Appointment) error
	InsertEvent(ctx context.Context, evt outbox.Event) error
}
