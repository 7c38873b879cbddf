package appointment

import (
	"context"
	"fmt"
	"time"
)

// ReadAvailability produces a snapshot of the dates and times currently
// offered for a location. The session must be logged in and the location
// already selected; navigation is the caller's job.
//
// A calendar with no selectable dates yields an empty snapshot, which is
// success. A selectable date with an empty time dropdown yields
// ErrEmptyTimeSlots, which is a failure: it means the page is
// desynchronized and the caller must restart from the home page.
func ReadAvailability(ctx context.Context, d SessionDriver, loc Location, attempt int) (Snapshot, error) {
	dates, err := d.ReadCalendar(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read calendar at %s: %w", loc, err)
	}

	snap := Snapshot{
		Location: loc,
		Dates:    dates,
		Times:    make(map[string][]string, len(dates)),
		Taken:    time.Now(),
		Attempt:  attempt,
	}

	for _, date := range dates {
		times, err := d.ReadTimeSlots(ctx, date)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read times for %s at %s: %w",
				date.Format(DateLayout), loc, err)
		}
		snap.Times[date.Format(DateLayout)] = times
	}
	return snap, nil
}
