package slug

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog() *memory.Store {
	s := memory.New()
	s.AddTenant(model.Tenant{ID: "t1", Name: "Acme"})
	s.AddTenant(model.Tenant{ID: "t2", Name: "Other"})
	s.AddUser(model.User{ID: "u1", TenantID: "t1", Name: "Ana", BookingSlug: "ana", Role: model.RoleAdmin, IsActive: true})
	s.AddUser(model.User{ID: "u2", TenantID: "t1", Name: "Ben", BookingSlug: "ben", Role: model.RoleMember, IsActive: true})
	s.AddUser(model.User{ID: "u3", TenantID: "t1", Name: "Cy", Role: model.RoleViewer, IsActive: true})
	s.AddUser(model.User{ID: "u4", TenantID: "t1", Name: "Dee", Role: model.RoleMember, IsActive: false})
	s.AddUser(model.User{ID: "u5", Name: "Loner", BookingSlug: "loner", Role: model.RoleMember, IsActive: true})
	s.AddUser(model.User{ID: "u9", TenantID: "t2", Name: "Zed", BookingSlug: "zed", Role: model.RoleOwner, IsActive: true})

	s.AddBookingType(model.BookingType{ID: "pool", TenantID: "t1", Slug: "pool", DurationMinutes: 30, IsActive: true, AssignmentType: model.AssignmentRoundRobin})
	s.AddBookingType(model.BookingType{ID: "fixed", TenantID: "t1", Slug: "fixed", DurationMinutes: 30, IsActive: true, SpecificHostID: "u2",
		AssignedHosts: []model.AssignedHost{{UserID: "u1"}}})
	s.AddBookingType(model.BookingType{ID: "team", TenantID: "t1", Slug: "team", DurationMinutes: 30, IsActive: true,
		AssignedHosts: []model.AssignedHost{{UserID: "u4", Priority: 0}, {UserID: "u2", Priority: 1}, {UserID: "u1", Priority: 2}}})
	s.AddBookingType(model.BookingType{ID: "off", TenantID: "t1", Slug: "off", DurationMinutes: 30, IsActive: false})
	return s
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"ana", "intro"}, Split("/ana//intro/"))
	assert.Empty(t, Split(""))
}

func TestResolveDirectHostPrecedence(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(newCatalog())

	tests := []struct {
		slug string
		want []string
	}{
		{"fixed", []string{"u2"}},
		{"team", []string{"u2", "u1"}},
		{"pool", []string{"u1", "u2"}},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			target, err := r.Resolve(ctx, []string{tt.slug})
			require.NoError(t, err)
			assert.Equal(t, Direct, target.Kind)
			assert.Equal(t, tt.want, target.HostIDs())
			assert.Equal(t, model.Scope{TenantID: "t1"}, target.Scope())
			assert.Equal(t, "Acme", target.Tenant.Name)
		})
	}
}

func TestResolveUserPrefixed(t *testing.T) {
	target, err := NewResolver(newCatalog()).Resolve(context.Background(), []string{"ben", "team"})
	require.NoError(t, err)
	assert.Equal(t, UserPrefixed, target.Kind)
	assert.Equal(t, []string{"u2"}, target.HostIDs())
	assert.Equal(t, model.Scope{TenantID: "t1", HostID: "u2"}, target.Scope())

	host, ok := target.Host("u2")
	assert.True(t, ok)
	assert.Equal(t, "Ben", host.Name)
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(newCatalog())

	tests := []struct {
		name     string
		segments []string
		want     error
	}{
		{"no segments", nil, ErrInvalidURL},
		{"three segments", []string{"a", "b", "c"}, ErrInvalidURL},
		{"unknown type", []string{"nope"}, ErrBookingTypeNotFound},
		{"inactive type", []string{"off"}, ErrBookingTypeNotFound},
		{"unknown user", []string{"nobody", "pool"}, ErrUserNotFound},
		{"user without tenant", []string{"loner", "pool"}, ErrUserNotFound},
		{"type in other tenant", []string{"zed", "pool"}, ErrBookingTypeNotFound},
		{"inactive type under user", []string{"ana", "off"}, ErrBookingTypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.segments)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
