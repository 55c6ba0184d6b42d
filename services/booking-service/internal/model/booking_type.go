package model

import (
	"encoding/json"
	"sort"
	"time"
)

type AssignmentType string

const (
	AssignmentRoundRobin AssignmentType = "ROUND_ROBIN"
	AssignmentFixed      AssignmentType = "FIXED"
)

type LocationType string

const (
	LocationVideo    LocationType = "VIDEO"
	LocationPhone    LocationType = "PHONE"
	LocationInPerson LocationType = "IN_PERSON"
)

// BookingType is a bookable service definition.
type BookingType struct {
	ID                  string
	TenantID            string
	Slug                string
	Name                string
	Description         string
	Color               string
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	MinNoticeHours      int
	MaxFutureDays       int
	AssignmentType      AssignmentType
	SpecificHostID      string
	AssignedHosts       []AssignedHost
	IsActive            bool
	RequiresApproval    bool
	AutoCreateMeet      bool
	LocationType        LocationType
	Questions           json.RawMessage
}

type AssignedHost struct {
	UserID   string
	Priority int
}

func (b BookingType) Duration() time.Duration {
	return time.Duration(b.DurationMinutes) * time.Minute
}

func (b BookingType) BufferBefore() time.Duration {
	return time.Duration(b.BufferBeforeMinutes) * time.Minute
}

func (b BookingType) BufferAfter() time.Duration {
	return time.Duration(b.BufferAfterMinutes) * time.Minute
}

func (b BookingType) MinNotice() time.Duration {
	return time.Duration(b.MinNoticeHours) * time.Hour
}

// InitialStatus is the status a freshly booked appointment starts in.
func (b BookingType) InitialStatus() Status {
	if b.RequiresApproval {
		return StatusScheduled
	}
	return StatusConfirmed
}

// NeedsVideoMeeting reports whether a meeting link must be generated.
func (b BookingType) NeedsVideoMeeting() bool {
	return b.AutoCreateMeet && b.LocationType == LocationVideo
}

// AssignedHostIDs returns the explicit host list ordered by priority, keeping
// list order among equal priorities.
func (b BookingType) AssignedHostIDs() []string {
	if len(b.AssignedHosts) == 0 {
		return nil
	}
	hosts := make([]AssignedHost, len(b.AssignedHosts))
	copy(hosts, b.AssignedHosts)
	sort.SliceStable(hosts, func(i, j int) bool { return hosts[i].Priority < hosts[j].Priority })
	ids := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h.UserID != "" {
			ids = append(ids, h.UserID)
		}
	}
	return ids
}
