package model

import "time"

type Tenant struct {
	ID           string
	Name         string
	LogoURL      string
	PrimaryColor string
}

type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleMember  Role = "MEMBER"
	RoleViewer  Role = "VIEWER"
	RoleClient  Role = "CLIENT"
)

// Operational reports whether users with this role can host bookings.
func (r Role) Operational() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

// OperationalRoles is the fallback host pool for booking types without hosts.
var OperationalRoles = []Role{RoleOwner, RoleAdmin, RoleManager, RoleMember}

type User struct {
	ID          string
	TenantID    string
	Name        string
	Email       string
	BookingSlug string
	Role        Role
	IsActive    bool
}

type Provider string

const (
	ProviderZoom           Provider = "zoom"
	ProviderGoogleCalendar Provider = "google_calendar"
)

// Integration is a host's connected third-party account.
type Integration struct {
	UserID       string
	Provider     Provider
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CalendarID   string
}

func FindIntegration(list []Integration, p Provider) (Integration, bool) {
	for _, i := range list {
		if i.Provider == p && (i.AccessToken != "" || i.RefreshToken != "") {
			return i, true
		}
	}
	return Integration{}, false
}
