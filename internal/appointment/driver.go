package appointment

import (
	"context"
	"errors"
	"time"
)

// Typed failures surfaced by SessionDriver implementations. The
// orchestrator classifies on these and never inspects raw driver errors.
var (
	// ErrLoginRejected means the site refused the operator's credentials.
	// Not recoverable by retry.
	ErrLoginRejected = errors.New("login rejected")

	// ErrSystemBusy means the site showed its "system is busy" banner.
	// Recoverable after restarting from the home page.
	ErrSystemBusy = errors.New("system is busy")

	// ErrCalendarUnavailable means the calendar control did not render
	// within the driver's wait budget.
	ErrCalendarUnavailable = errors.New("calendar unavailable")

	// ErrEmptyTimeSlots means a selectable date offered no times, which
	// indicates the page is desynchronized and needs a home-page restart.
	ErrEmptyTimeSlots = errors.New("empty time slots for selectable date")
)

// BookResult is the driver's verdict on a booking transaction. Ambiguous
// means the page showed neither clear success nor clear failure; callers
// must never treat it as success.
type BookResult string

const (
	BookBooked    BookResult = "booked"
	BookFailed    BookResult = "failed"
	BookAmbiguous BookResult = "ambiguous"
)

// SessionDriver is the contract the orchestrator consumes to operate the
// booking site. All calls are blocking and bounded by the driver's own
// timeouts. One driver instance backs at most one in-flight attempt at a
// time.
type SessionDriver interface {
	// Login signs in. Returns ErrLoginRejected when credentials are bad.
	Login(ctx context.Context) error

	// NavigateHome returns to the site's landing page and advances to the
	// appointment group page, the known-good starting point for a fresh
	// reschedule flow.
	NavigateHome(ctx context.Context) error

	// SelectLocation opens the reschedule page (if needed) and selects the
	// consulate in the facility dropdown.
	SelectLocation(ctx context.Context, loc Location) error

	// ReadCalendar returns the selectable dates currently offered, in
	// ascending order. An empty slice with nil error means no appointments
	// are offered. Returns ErrCalendarUnavailable if the calendar never
	// rendered.
	ReadCalendar(ctx context.Context) ([]time.Time, error)

	// ReadTimeSlots returns the times offered for a selectable date.
	// Returns ErrEmptyTimeSlots if the dropdown stays empty.
	ReadTimeSlots(ctx context.Context, date time.Time) ([]string, error)

	// Book completes the reschedule transaction for date/slot. A non-nil
	// error means the transaction could not be driven at all; otherwise the
	// BookResult carries the page's verdict.
	Book(ctx context.Context, date time.Time, slot string) (BookResult, error)

	// Close releases the browser session. Safe to call more than once.
	Close() error
}
