package appointment

import (
	"fmt"
	"time"
)

// Location is one consulate the operator is willing to accept an
// appointment at. ID is the facility value used by the site's location
// dropdown; Label is the human-readable city name.
type Location struct {
	ID    string
	Label string
}

func (l Location) String() string {
	if l.Label != "" {
		return l.Label
	}
	return l.ID
}

// DateConstraint bounds which appointment dates are worth booking.
// A zero CurrentBooking means no appointment is booked yet.
type DateConstraint struct {
	Earliest       time.Time
	Latest         time.Time
	CurrentBooking time.Time
}

func (c DateConstraint) Validate() error {
	if c.Earliest.IsZero() || c.Latest.IsZero() {
		return fmt.Errorf("earliest and latest dates are required")
	}
	if c.Latest.Before(c.Earliest) {
		return fmt.Errorf("earliest date %s is after latest date %s",
			c.Earliest.Format(DateLayout), c.Latest.Format(DateLayout))
	}
	return nil
}

// Qualifies reports whether d is within [Earliest, Latest] and strictly
// earlier than the current booking. The bot only ever moves a booking
// earlier, never later.
func (c DateConstraint) Qualifies(d time.Time) bool {
	if d.Before(c.Earliest) || d.After(c.Latest) {
		return false
	}
	if !c.CurrentBooking.IsZero() && !d.Before(c.CurrentBooking) {
		return false
	}
	return true
}

const DateLayout = "2006-01-02"

// ParseDate parses a calendar day in YYYY-MM-DD form into a UTC-midnight
// time.Time, the normal form used throughout the bot.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

// Snapshot is one read of the dates and times currently offered for a
// location. A snapshot with no dates is a valid result ("no appointments"),
// distinct from a read failure.
type Snapshot struct {
	Location Location
	Dates    []time.Time         // ascending
	Times    map[string][]string // keyed by date in DateLayout form
	Taken    time.Time
	Attempt  int
}

func (s Snapshot) Empty() bool { return len(s.Dates) == 0 }

// TimesFor returns the time slots offered for a date in the snapshot.
func (s Snapshot) TimesFor(d time.Time) []string {
	return s.Times[d.Format(DateLayout)]
}

// OutcomeKind classifies what one full attempt produced. The orchestrator's
// next action is a pure function of this value.
type OutcomeKind string

const (
	NoSlotsFound           OutcomeKind = "no_slots_found"
	SlotFoundNotQualifying OutcomeKind = "slot_found_not_qualifying"
	SlotFoundQualifying    OutcomeKind = "slot_found_qualifying"
	BookingSucceeded       OutcomeKind = "booking_succeeded"
	BookingFailed          OutcomeKind = "booking_failed"
	TransientError         OutcomeKind = "transient_error"
	FatalError             OutcomeKind = "fatal_error"
)

// Outcome is the classified result of one attempt. Date and Slot are set
// for the slot-found and booking variants; Reason carries the failure
// detail for the error variants.
type Outcome struct {
	Kind     OutcomeKind
	Location Location
	Date     time.Time
	Slot     string
	Reason   string
}

// Failure reports whether the outcome counts toward the consecutive
// failure limit.
func (o Outcome) Failure() bool {
	switch o.Kind {
	case BookingFailed, TransientError, FatalError:
		return true
	}
	return false
}

func (o Outcome) String() string {
	switch o.Kind {
	case SlotFoundQualifying, BookingSucceeded, BookingFailed:
		return fmt.Sprintf("%s %s %s @ %s", o.Kind, o.Date.Format(DateLayout), o.Slot, o.Location)
	case TransientError, FatalError:
		return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
	}
	return string(o.Kind)
}
