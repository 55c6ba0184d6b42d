package availability

// AvailableDays returns the days of month that fall inside the notice and
// future-date window and whose weekday has at least one open period.
//
// It does not look at existing appointments, so a returned day may still turn
// out to have no free slot.
func AvailableDays(in Input, month Month) []Date {
	if len(in.HostIDs) == 0 {
		return nil
	}
	loc := in.Template.Location()
	first := firstBookableDay(in, loc)
	last, bounded := lastBookableDay(in, loc)

	var out []Date
	for _, d := range month.Days() {
		if d.Before(first) {
			continue
		}
		if bounded && d.After(last) {
			continue
		}
		if len(in.Template.PeriodsFor(d.Weekday())) == 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}
