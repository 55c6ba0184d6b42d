package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/model"
)

// SlotStep is the fixed grid candidates are stepped on, independent of duration.
const SlotStep = 30 * time.Minute

// Slot is a bookable start time. HostID is advisory; the host that actually
// gets the appointment is chosen when the booking is created.
type Slot struct {
	Time   time.Time
	HostID string
}

// Input is everything the generator and scanner need besides the day or month.
type Input struct {
	BookingType model.BookingType
	HostIDs     []string
	Template    model.AvailabilityTemplate
	Now         time.Time
}

// GenerateSlots returns every start time on day at which a booking of the
// booking type's duration fits inside an open period, starts strictly after
// the minimum notice and does not overlap any busy interval padded by its own
// buffers. Periods need not be sorted; the result is ordered by time.
func GenerateSlots(in Input, day Date, busy []model.Busy) []Slot {
	if len(in.HostIDs) == 0 {
		return nil
	}
	duration := in.BookingType.Duration()
	if duration <= 0 {
		return nil
	}
	periods := in.Template.PeriodsFor(day.Weekday())
	if len(periods) == 0 {
		return nil
	}

	loc := in.Template.Location()
	if last, bounded := lastBookableDay(in, loc); bounded && day.After(last) {
		return nil
	}
	minStart := in.Now.Add(in.BookingType.MinNotice())

	seen := make(map[int64]struct{})
	var slots []Slot
	for _, p := range periods {
		startMin, err := model.ParseClock(p.Start)
		if err != nil {
			continue
		}
		endMin, err := model.ParseClock(p.End)
		if err != nil || endMin <= startMin {
			continue
		}
		periodStart := day.At(startMin, loc)
		periodEnd := day.At(endMin, loc)

		for cursor := periodStart; !cursor.Add(duration).After(periodEnd); cursor = cursor.Add(SlotStep) {
			if !cursor.After(minStart) {
				continue
			}
			if overlapsAny(cursor, cursor.Add(duration), busy) {
				continue
			}
			key := cursor.Unix()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			slots = append(slots, Slot{Time: cursor, HostID: in.HostIDs[0]})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Time.Before(slots[j].Time) })
	return slots
}

func overlapsAny(start, end time.Time, busy []model.Busy) bool {
	for _, b := range busy {
		bStart, bEnd := b.Padded()
		// Half-open intervals: [start,end) overlaps [bStart,bEnd) iff start < bEnd && bStart < end.
		if start.Before(bEnd) && bStart.Before(end) {
			return true
		}
	}
	return false
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func firstBookableDay(in Input, loc *time.Location) Date {
	return DateOf(in.Now.Add(in.BookingType.MinNotice()), loc)
}

// lastBookableDay is the local date of now + MaxFutureDays. A non-positive
// MaxFutureDays leaves the window unbounded.
func lastBookableDay(in Input, loc *time.Location) (Date, bool) {
	if in.BookingType.MaxFutureDays <= 0 {
		return Date{}, false
	}
	return DateOf(in.Now.In(loc).AddDate(0, 0, in.BookingType.MaxFutureDays), loc), true
}
