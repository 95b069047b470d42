// Package digest implements digest time windows and the scheduler that
// drains the notification queue once per window.
package digest

import "time"

// Slot labels for the two fixed daily windows.
const (
	SlotAM = "am"
	SlotPM = "pm"
)

// Window is one of the two fixed daily digest slots, a half-open
// [Start, End) interval. The two slots tile every calendar day with no
// gaps and no overlap: AM covers [00:00, 12:00), PM covers [12:00, 24:00).
// All window arithmetic happens in one canonical zone, never the zone of
// the triggering request.
type Window struct {
	Start time.Time
	End   time.Time
	Slot  string
}

// Contains reports whether the instant falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowContaining returns the window the given instant falls in.
func WindowContaining(t time.Time, loc *time.Location) Window {
	lt := t.In(loc)
	y, m, d := lt.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	noon := time.Date(y, m, d, 12, 0, 0, 0, loc)

	if lt.Before(noon) {
		return Window{Start: midnight, End: noon, Slot: SlotAM}
	}
	nextMidnight := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return Window{Start: noon, End: nextMidnight, Slot: SlotPM}
}

// LastClosed returns the most recently closed window as of the given
// instant: the one whose end is at or before t.
func LastClosed(t time.Time, loc *time.Location) Window {
	current := WindowContaining(t, loc)
	// The previous window ends where the current one starts.
	return WindowContaining(current.Start.Add(-time.Second), loc)
}
