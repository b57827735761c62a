package pipeline

import (
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
)

// SendTime returns when a nudge created at now should go out: now plus the
// dispatch offset, pushed to the end of the trainer's quiet hours when it
// would land inside them.
func SendTime(now time.Time, offset time.Duration, s domain.TrainerSettings) time.Time {
	t := now.Add(offset)
	if !s.HasQuietHours() {
		return t
	}
	local := t.In(location(s.Timezone))
	if !inQuietHours(local.Hour(), s.QuietHoursStart, s.QuietHoursEnd) {
		return t
	}
	end := time.Date(local.Year(), local.Month(), local.Day(), s.QuietHoursEnd, 0, 0, 0, local.Location())
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end.UTC()
}

// StartOfDay is local midnight for now in the trainer's timezone.
func StartOfDay(now time.Time, tz string) time.Time {
	local := now.In(location(tz))
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// inQuietHours handles windows that wrap midnight (21 -> 8).
func inQuietHours(hour, start, end int) bool {
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
