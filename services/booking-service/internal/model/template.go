package model

import (
	"fmt"
	"strings"
	"time"
)

// Period is an open interval of wall-clock time, "HH:MM" in the template timezone.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AvailabilityTemplate is the weekly schedule applicable to a host set.
// WeeklySchedule keys are lowercase english weekday names.
type AvailabilityTemplate struct {
	TenantID       string
	Timezone       string
	WeeklySchedule map[string][]Period
}

// Location resolves the template timezone, falling back to UTC.
func (t AvailabilityTemplate) Location() *time.Location {
	name := strings.TrimSpace(t.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TimezoneName is the effective IANA name reported to clients.
func (t AvailabilityTemplate) TimezoneName() string {
	return t.Location().String()
}

// PeriodsFor returns the periods configured for the weekday of day.
func (t AvailabilityTemplate) PeriodsFor(day time.Weekday) []Period {
	return t.WeeklySchedule[strings.ToLower(day.String())]
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is accepted as end of day.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return h*60 + m, nil
}
