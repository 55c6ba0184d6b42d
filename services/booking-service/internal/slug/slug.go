// Package slug turns public booking URL segments into a resolved Target.
package slug

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage"
)

var (
	ErrBookingTypeNotFound = errors.New("booking type not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidURL          = errors.New("invalid url format")
)

type Kind int

const (
	// Direct is /{typeSlug}: hosts come from the booking type configuration.
	Direct Kind = iota + 1
	// UserPrefixed is /{userSlug}/{typeSlug}: the user is the only host.
	UserPrefixed
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case UserPrefixed:
		return "user_prefixed"
	}
	return "unknown"
}

// Target is a resolved booking URL.
type Target struct {
	Kind        Kind
	BookingType model.BookingType
	Tenant      model.Tenant
	// Hosts is the eligible host set in assignment order.
	Hosts []model.User
	// User is the URL prefix user; only set for UserPrefixed.
	User model.User
}

// Scope is the conflict scope: the fixed user for UserPrefixed, the tenant otherwise.
func (t Target) Scope() model.Scope {
	s := model.Scope{TenantID: t.BookingType.TenantID}
	if t.Kind == UserPrefixed {
		s.HostID = t.User.ID
	}
	return s
}

func (t Target) HostIDs() []string {
	ids := make([]string, 0, len(t.Hosts))
	for _, h := range t.Hosts {
		ids = append(ids, h.ID)
	}
	return ids
}

// Host returns the eligible host with id.
func (t Target) Host(id string) (model.User, bool) {
	for _, h := range t.Hosts {
		if h.ID == id {
			return h, true
		}
	}
	return model.User{}, false
}

// Split breaks a URL path remainder into its non-empty segments.
func Split(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type Resolver struct {
	catalog storage.Catalog
}

func NewResolver(catalog storage.Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

func (r *Resolver) Resolve(ctx context.Context, segments []string) (Target, error) {
	switch len(segments) {
	case 1:
		return r.direct(ctx, segments[0])
	case 2:
		return r.userPrefixed(ctx, segments[0], segments[1])
	}
	return Target{}, ErrInvalidURL
}

func (r *Resolver) direct(ctx context.Context, typeSlug string) (Target, error) {
	bt, err := r.catalog.BookingTypeBySlug(ctx, typeSlug)
	if err != nil {
		return Target{}, notFound(err, ErrBookingTypeNotFound)
	}
	if !bt.IsActive {
		return Target{}, ErrBookingTypeNotFound
	}

	hosts, err := r.eligibleHosts(ctx, bt)
	if err != nil {
		return Target{}, fmt.Errorf("eligible hosts: %w", err)
	}
	tenant, err := r.tenant(ctx, bt.TenantID)
	if err != nil {
		return Target{}, err
	}
	return Target{Kind: Direct, BookingType: bt, Tenant: tenant, Hosts: hosts}, nil
}

func (r *Resolver) userPrefixed(ctx context.Context, userSlug, typeSlug string) (Target, error) {
	user, err := r.catalog.UserByBookingSlug(ctx, userSlug)
	if err != nil {
		return Target{}, notFound(err, ErrUserNotFound)
	}
	if user.TenantID == "" {
		return Target{}, ErrUserNotFound
	}

	bt, err := r.catalog.BookingTypeBySlugInTenant(ctx, user.TenantID, typeSlug)
	if err != nil {
		return Target{}, notFound(err, ErrBookingTypeNotFound)
	}
	if !bt.IsActive {
		return Target{}, ErrBookingTypeNotFound
	}

	tenant, err := r.tenant(ctx, bt.TenantID)
	if err != nil {
		return Target{}, err
	}
	return Target{Kind: UserPrefixed, BookingType: bt, Tenant: tenant, Hosts: []model.User{user}, User: user}, nil
}

// eligibleHosts applies the precedence specific host, assigned list, then
// every active operational user of the tenant.
func (r *Resolver) eligibleHosts(ctx context.Context, bt model.BookingType) ([]model.User, error) {
	if bt.SpecificHostID != "" {
		return r.catalog.ActiveUsers(ctx, bt.TenantID, []string{bt.SpecificHostID})
	}
	if ids := bt.AssignedHostIDs(); len(ids) > 0 {
		return r.catalog.ActiveUsers(ctx, bt.TenantID, ids)
	}
	return r.catalog.OperationalUsers(ctx, bt.TenantID)
}

func (r *Resolver) tenant(ctx context.Context, id string) (model.Tenant, error) {
	t, err := r.catalog.Tenant(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Tenant{ID: id}, nil
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("tenant: %w", err)
	}
	return t, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return sentinel
	}
	return err
}
