// Package assignment picks the host for an incoming booking.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/slug"
)

var ErrNoHostAvailable = errors.New("no available host")

// LoadCounter counts occupying appointments per host from a point in time.
// storage.Tx satisfies it, so counts are read inside the booking transaction.
type LoadCounter interface {
	CountUpcomingByHost(ctx context.Context, tenantID string, hostIDs []string, from time.Time) (map[string]int, error)
}

// Pick returns the host for a booking of target at now. fallback is used only
// when the eligible host set is empty; a zero fallback means none was given.
func Pick(ctx context.Context, counter LoadCounter, target slug.Target, fallback model.User, now time.Time) (model.User, error) {
	if target.Kind == slug.UserPrefixed {
		return target.User, nil
	}
	hosts := target.Hosts
	if len(hosts) == 0 {
		if fallback.ID != "" {
			return fallback, nil
		}
		return model.User{}, ErrNoHostAvailable
	}
	if target.BookingType.AssignmentType == model.AssignmentRoundRobin || len(hosts) > 1 {
		return leastLoaded(ctx, counter, target.BookingType.TenantID, hosts, now)
	}
	return hosts[0], nil
}

// leastLoaded picks the host with the fewest upcoming appointments. Ties go
// to the host listed first.
func leastLoaded(ctx context.Context, counter LoadCounter, tenantID string, hosts []model.User, now time.Time) (model.User, error) {
	ids := make([]string, 0, len(hosts))
	for _, h := range hosts {
		ids = append(ids, h.ID)
	}
	counts, err := counter.CountUpcomingByHost(ctx, tenantID, ids, now)
	if err != nil {
		return model.User{}, fmt.Errorf("count upcoming: %w", err)
	}

	best := 0
	for i := 1; i < len(hosts); i++ {
		if counts[hosts[i].ID] < counts[hosts[best].ID] {
			best = i
		}
	}
	return hosts[best], nil
}
