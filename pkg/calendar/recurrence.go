package calendar

import (
	"time"

	"github.com/albarqi19/alraed-sub006/pkg/models"
)

// LookAheadDays bounds how far NextOccurrence scans for an allowed weekday.
// An event whose next allowed day lies beyond the window reports no
// occurrence at all.
const LookAheadDays = 14

// NextOccurrence returns the first instant at or after ref at which event is
// due, on the host's local clock. It returns false when the recurrence allows
// no weekday, the time of day cannot be parsed, or nothing qualifies within
// LookAheadDays.
func NextOccurrence(event models.BellEvent, ref time.Time) (time.Time, bool) {
	days := event.Recurrence.AllowedDays()
	if len(days) == 0 {
		return time.Time{}, false
	}
	hour, minute, err := event.HourMinute()
	if err != nil {
		return time.Time{}, false
	}

	allowed := [7]bool{}
	for _, d := range days {
		allowed[d] = true
	}

	ref = ref.In(time.Local)
	y, m, d := ref.Date()
	for i := 0; i < LookAheadDays; i++ {
		// time.Date normalizes d+i across month ends and keeps the wall
		// clock time across DST changes.
		candidate := time.Date(y, m, d+i, hour, minute, 0, 0, time.Local)
		if !allowed[candidate.Weekday()] {
			continue
		}
		if !candidate.Before(ref) {
			return candidate, true
		}
	}
	return time.Time{}, false
}
