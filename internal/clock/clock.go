// Package clock computes alarm trigger instants from wall-clock definitions.
//
// All functions are pure: the caller supplies "now", and the time zone of the result
// is the location of now.
package clock

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/alarmd/internal/alarm"
)

// NextTrigger returns the first instant strictly after now at hour:minute.
//
// With an empty days set the alarm is one-time: today if still ahead, else tomorrow.
// Otherwise the scan starts from that same candidate and walks forward up to seven
// days until it finds a day in the set whose instant is still ahead of now.
func NextTrigger(hour, minute int, days alarm.Weekdays, now time.Time) time.Time {
	candidate := atClock(now, 0, hour, minute)
	if !candidate.After(now) {
		candidate = atClock(now, 1, hour, minute)
	}
	if days.Empty() {
		return candidate
	}

	for range 7 {
		if days.Has(alarm.WeekdayOf(candidate.Weekday())) && candidate.After(now) {
			return candidate
		}
		candidate = atClock(candidate, 1, hour, minute)
	}
	// Unreachable for a non-empty set: seven consecutive days cover every weekday.
	return candidate
}

// Next is NextTrigger for a stored definition.
func Next(d alarm.Definition, now time.Time) time.Time {
	return NextTrigger(d.Hour, d.Minute, d.RepeatDays, now)
}

// atClock builds the wall-clock instant hour:minute on the day offset days after ref.
// Going through time.Date keeps the wall clock stable across DST shifts.
func atClock(ref time.Time, offset, hour, minute int) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d+offset, hour, minute, 0, 0, ref.Location())
}

// Upcoming pairs an alarm with its next trigger instant.
type Upcoming struct {
	Alarm     alarm.Definition `json:"alarm"`
	TriggerAt time.Time        `json:"trigger_at"`
}

// NextAlarm picks the enabled alarm that fires soonest. Ties go to the lower id.
func NextAlarm(alarms []alarm.Definition, now time.Time) (Upcoming, bool) {
	var best Upcoming
	found := false
	for _, a := range alarms {
		if !a.Enabled {
			continue
		}
		at := Next(a, now)
		if !found || at.Before(best.TriggerAt) || (at.Equal(best.TriggerAt) && a.ID < best.Alarm.ID) {
			best = Upcoming{Alarm: a, TriggerAt: at}
			found = true
		}
	}
	return best, found
}

// FormatTimeUntil renders the gap to a trigger as "7h 30m", "45m" or "now".
// Partial minutes round down; anything under a minute is "now".
func FormatTimeUntil(d time.Duration) string {
	if d < time.Minute {
		return "now"
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
