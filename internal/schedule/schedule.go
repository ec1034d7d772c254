// Package schedule holds the wall-clock arithmetic for run deadlines and
// the hourly run cadence.
package schedule

import "time"

// NextHourBoundary returns the first exact wall-clock hour strictly after
// now, in now's location. time.Date normalizes hour 24, so the last hour of
// a day rolls into the next day correctly, and zones with non-whole-hour
// UTC offsets still land on :00 local time.
func NextHourBoundary(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, now.Hour()+1, 0, 0, 0, now.Location())
}

// UntilNextHour returns how long to sleep from now until the next hour
// boundary
func UntilNextHour(now time.Time) time.Duration {
	return NextHourBoundary(now).Sub(now)
}
