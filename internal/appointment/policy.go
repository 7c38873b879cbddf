package appointment

import (
	"sort"
	"time"
)

// Decision is the qualification policy's verdict on a snapshot.
type Decision struct {
	Match bool
	Date  time.Time
	Slot  string
}

// Evaluate scans a snapshot against the constraint and picks the slot to
// book, if any. Earliest qualifying date wins regardless of snapshot
// order; ties among times on that date are broken by the earliest time.
// Pure function; callers must re-evaluate on every attempt because the
// remote state changes between polls.
func Evaluate(snap Snapshot, c DateConstraint) Decision {
	dates := make([]time.Time, len(snap.Dates))
	copy(dates, snap.Dates)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, d := range dates {
		if !c.Qualifies(d) {
			continue
		}
		times := snap.TimesFor(d)
		if len(times) == 0 {
			continue
		}
		return Decision{Match: true, Date: d, Slot: earliestTime(times)}
	}
	return Decision{}
}

// earliestTime picks the earliest entry from dropdown texts like "08:30".
// Entries that fail to parse sort last; if nothing parses the first entry
// wins, matching the original "take the first offered time" behavior.
func earliestTime(times []string) string {
	best := times[0]
	bestAt, bestOK := parseClock(best)
	for _, t := range times[1:] {
		at, ok := parseClock(t)
		if !ok {
			continue
		}
		if !bestOK || at.Before(bestAt) {
			best, bestAt, bestOK = t, at, true
		}
	}
	return best
}

func parseClock(s string) (time.Time, bool) {
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM"} {
		if at, err := time.Parse(layout, s); err == nil {
			return at, true
		}
	}
	return time.Time{}, false
}
