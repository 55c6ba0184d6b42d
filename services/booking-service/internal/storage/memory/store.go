// Package memory is an in-process storage.Store. Transactions are serialized
// and the per-host overlap rule is enforced on insert, mirroring the
// PostgreSQL exclusion constraint.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	tenants      map[string]model.Tenant
	users        []model.User
	bookingTypes []model.BookingType
	templates    map[string]model.AvailabilityTemplate
	integrations map[string][]model.Integration
	appointments []model.Appointment
	events       []outbox.Event
	now          func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tenants:      make(map[string]model.Tenant),
		templates:    make(map[string]model.AvailabilityTemplate),
		integrations: make(map[string][]model.Integration),
		now:          time.Now,
	}
}

func (s *Store) AddTenant(t model.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

// AddUser appends u; OperationalUsers reports users in insertion order.
func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
}

func (s *Store) AddBookingType(bt model.BookingType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookingTypes = append(s.bookingTypes, bt)
}

func (s *Store) SetTemplate(tpl model.AvailabilityTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tpl.TenantID] = tpl
}

func (s *Store) AddIntegration(in model.Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations[in.UserID] = append(s.integrations[in.UserID], in)
}

// AddAppointment stores an existing appointment, applying the same overlap
// rule as a booking.
func (s *Store) AddAppointment(appt model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.Status.OccupiesSlot() && hostOverlap(s.appointments, appt) {
		return storage.ErrConflict
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = s.now()
	}
	s.appointments = append(s.appointments, appt)
	return nil
}

// Appointments returns a snapshot of all stored appointments ordered by start.
func (s *Store) Appointments() []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Appointment, len(s.appointments))
	copy(out, s.appointments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Events returns the committed outbox events.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]outbox.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) BookingTypeBySlug(_ context.Context, slug string) (model.BookingType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var fallback *model.BookingType
	for i := range s.bookingTypes {
		bt := s.bookingTypes[i]
		if bt.Slug != slug {
			continue
		}
		if bt.IsActive {
			return bt, nil
		}
		if fallback == nil {
			fallback = &s.bookingTypes[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return model.BookingType{}, storage.ErrNotFound
}

func (s *Store) BookingTypeBySlugInTenant(_ context.Context, tenantID, slug string) (model.BookingType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, bt := range s.bookingTypes {
		if bt.TenantID == tenantID && bt.Slug == slug {
			return bt, nil
		}
	}
	return model.BookingType{}, storage.ErrNotFound
}

func (s *Store) BookingTypeByID(_ context.Context, id string) (model.BookingType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookingTypeByID(id)
}

func (s *Store) bookingTypeByID(id string) (model.BookingType, error) {
	for _, bt := range s.bookingTypes {
		if bt.ID == id {
			return bt, nil
		}
	}
	return model.BookingType{}, storage.ErrNotFound
}

func (s *Store) UserByBookingSlug(_ context.Context, slug string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.BookingSlug != "" && u.BookingSlug == slug {
			return u, nil
		}
	}
	return model.User{}, storage.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, storage.ErrNotFound
}

func (s *Store) ActiveUsers(_ context.Context, tenantID string, ids []string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.User
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		for _, u := range s.users {
			if u.ID == id && u.TenantID == tenantID && u.IsActive {
				out = append(out, u)
				seen[id] = true
				break
			}
		}
	}
	return out, nil
}

func (s *Store) OperationalUsers(_ context.Context, tenantID string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.User
	for _, u := range s.users {
		if u.TenantID == tenantID && u.IsActive && u.Role.Operational() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) Tenant(_ context.Context, id string) (model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return model.Tenant{}, storage.ErrNotFound
	}
	return t, nil
}

func (s *Store) AvailabilityTemplate(_ context.Context, tenantID string) (model.AvailabilityTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[tenantID]
	if !ok {
		return model.AvailabilityTemplate{}, storage.ErrNotFound
	}
	return tpl, nil
}

func (s *Store) Integrations(_ context.Context, userID string) ([]model.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Integration, len(s.integrations[userID]))
	copy(out, s.integrations[userID])
	return out, nil
}

func (s *Store) ListBusy(_ context.Context, scope model.Scope, from, to time.Time) ([]model.Busy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var busy []model.Busy
	for _, a := range s.appointments {
		if !inScope(a, scope) || !a.Status.OccupiesSlot() {
			continue
		}
		b := model.Busy{Start: a.StartTime, End: a.EndTime}
		if bt, err := s.bookingTypeByID(a.BookingTypeID); err == nil {
			b.BufferBefore = bt.BufferBefore()
			b.BufferAfter = bt.BufferAfter()
		}
		start, end := b.Padded()
		if start.Before(to) && end.After(from) {
			busy = append(busy, b)
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.appointments {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Appointment{}, storage.ErrNotFound
}

func (s *Store) UpdateIntegrationToken(_ context.Context, in model.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.integrations[in.UserID]
	for i := range list {
		if list[i].Provider != in.Provider {
			continue
		}
		list[i].AccessToken = in.AccessToken
		list[i].RefreshToken = in.RefreshToken
		list[i].ExpiresAt = in.ExpiresAt
		return nil
	}
	return storage.ErrNotFound
}

func (s *Store) UpdateMeeting(_ context.Context, appointmentID string, info model.MeetingInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.appointments {
		if s.appointments[i].ID != appointmentID {
			continue
		}
		m := &s.appointments[i].Meeting
		if info.MeetingLink != "" {
			m.MeetingLink = info.MeetingLink
		}
		if info.MeetingID != "" {
			m.MeetingID = info.MeetingID
		}
		if info.CalendarEventID != "" {
			m.CalendarEventID = info.CalendarEventID
		}
		return nil
	}
	return storage.ErrNotFound
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range tx.appointments {
		if a.Status.OccupiesSlot() && hostOverlap(s.appointments, a) {
			return storage.ErrConflict
		}
	}
	s.appointments = append(s.appointments, tx.appointments...)
	s.events = append(s.events, tx.events...)
	return nil
}

type memTx struct {
	store        *Store
	appointments []model.Appointment
	events       []outbox.Event
}

func (t *memTx) visible() []model.Appointment {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	out := make([]model.Appointment, 0, len(t.store.appointments)+len(t.appointments))
	out = append(out, t.store.appointments...)
	return append(out, t.appointments...)
}

func (t *memTx) HasOverlap(_ context.Context, scope model.Scope, start, end time.Time) (bool, error) {
	for _, a := range t.visible() {
		if inScope(a, scope) && a.Status.OccupiesSlot() && a.StartTime.Before(end) && a.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CountUpcomingByHost(_ context.Context, tenantID string, hostIDs []string, from time.Time) (map[string]int, error) {
	counts := make(map[string]int, len(hostIDs))
	wanted := make(map[string]bool, len(hostIDs))
	for _, id := range hostIDs {
		wanted[id] = true
	}
	for _, a := range t.visible() {
		if a.TenantID == tenantID && wanted[a.HostID] && a.Status.OccupiesSlot() && !a.StartTime.Before(from) {
			counts[a.HostID]++
		}
	}
	return counts, nil
}

func (t *memTx) InsertAppointment(_ context.Context, appt *model.Appointment) error {
	if appt.Status.OccupiesSlot() && hostOverlap(t.visible(), *appt) {
		return storage.ErrConflict
	}
	appt.CreatedAt = t.store.now()
	t.appointments = append(t.appointments, *appt)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func inScope(a model.Appointment, scope model.Scope) bool {
	if a.TenantID != scope.TenantID {
		return false
	}
	return scope.HostID == "" || a.HostID == scope.HostID
}

func hostOverlap(existing []model.Appointment, appt model.Appointment) bool {
	for _, a := range existing {
		if a.TenantID == appt.TenantID && a.HostID == appt.HostID && a.Status.OccupiesSlot() &&
			a.StartTime.Before(appt.EndTime) && a.EndTime.After(appt.StartTime) {
			return true
		}
	}
	return false
}
