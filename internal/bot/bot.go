// Package bot drives the polling-and-booking state machine: read
// availability, evaluate the date constraint, confirm or book, classify
// every failure, schedule the next attempt.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/example/visawatch/internal/appointment"
	"github.com/example/visawatch/internal/confirm"
	"github.com/example/visawatch/internal/history"
	"github.com/example/visawatch/internal/notify"
	"github.com/example/visawatch/internal/statefile"
)

// Config is the monitoring session's fixed configuration.
type Config struct {
	Locations              []appointment.Location // one or two, in preference order
	Constraint             appointment.DateConstraint
	CheckInterval          time.Duration
	MaxConsecutiveFailures int
	AutoBook               bool
}

// Bot owns one browser session and one monitoring loop. At most one
// attempt is in flight at a time, so no two book() calls can ever overlap.
type Bot struct {
	Config   Config
	Driver   appointment.SessionDriver
	Notifier notify.Notifier
	Gate     *confirm.Gate
	History  *history.Repo    // optional
	State    *statefile.Store // optional
	Log      zerolog.Logger

	run *RunState

	stopc    chan struct{}
	stopOnce sync.Once
}

// ErrStopped is returned from Run after an orderly operator-requested stop.
var ErrStopped = errors.New("stopped by operator")

func (b *Bot) init() {
	if b.run == nil {
		b.run = NewRunState()
	}
	if b.stopc == nil {
		b.stopc = make(chan struct{})
	}
}

// Stop requests an orderly shutdown. Observed between attempts and while a
// confirmation is outstanding.
func (b *Bot) Stop() {
	b.init()
	b.stopOnce.Do(func() { close(b.stopc) })
}

// Status summarizes the run state for the operator.
func (b *Bot) Status() Status {
	b.init()
	return b.run.Snapshot(b.activeLocation().String())
}

// Run executes the monitoring session until a booking succeeds, a fatal
// condition is hit, or a stop is requested. The browser session and the
// confirmation timer are both released before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	b.init()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer b.Gate.Cancel()
	defer func() {
		if err := b.Driver.Close(); err != nil {
			b.Log.Warn().Err(err).Msg("closing browser session")
		}
	}()

	if err := b.login(ctx); err != nil {
		b.run.SetStopping()
		b.notify(ctx, fmt.Sprintf("Login failed: %v. Bot stopped, intervention required.", err))
		return err
	}
	b.notify(ctx, b.startedText())

	go b.replyLoop(ctx)

	// The first attempt always navigates from the home page; later
	// attempts retry in place unless a UI failure demands a restart.
	restart := true

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return b.shutdown("context canceled")
		case <-b.stopc:
			return b.shutdown("stop requested")
		case res := <-b.Gate.Results():
			done, err := b.handleConfirmation(ctx, res, &restart)
			if done {
				return err
			}
		case <-timer.C:
			out := b.attempt(ctx, &restart)
			done, err := b.finishAttempt(ctx, out)
			if done {
				return err
			}
			b.run.AdvanceLocation(len(b.Config.Locations))
			timer.Reset(b.Config.CheckInterval)
		}
	}
}

// attempt runs one full read-evaluate-(confirm)-book cycle and classifies
// its result into exactly one outcome.
func (b *Bot) attempt(ctx context.Context, restart *bool) appointment.Outcome {
	seq := b.run.BeginAttempt()
	loc := b.activeLocation()
	b.Log.Info().Int("attempt", seq).Str("location", loc.String()).Bool("restart", *restart).
		Msg("checking for available dates")

	if err := b.ensureReady(ctx, loc, *restart); err != nil {
		return b.classify(err, loc, restart)
	}
	*restart = false

	snap, err := appointment.ReadAvailability(ctx, b.Driver, loc, seq)
	if err != nil {
		return b.classify(err, loc, restart)
	}
	b.run.MarkSnapshot(snap.Taken)

	dec := appointment.Evaluate(snap, b.Config.Constraint)
	if !dec.Match {
		if snap.Empty() {
			return appointment.Outcome{Kind: appointment.NoSlotsFound, Location: loc}
		}
		return appointment.Outcome{Kind: appointment.SlotFoundNotQualifying, Location: loc}
	}

	if b.Config.AutoBook {
		b.notify(ctx, fmt.Sprintf("New slot found: %s %s @ %s. Booking now...",
			dec.Date.Format(appointment.DateLayout), dec.Slot, loc))
		return b.book(ctx, loc, dec.Date, dec.Slot, restart)
	}

	disp, err := b.Gate.Propose(ctx, loc, dec.Date, dec.Slot, snap.TimesFor(dec.Date))
	if err != nil {
		return appointment.Outcome{Kind: appointment.TransientError, Location: loc,
			Date: dec.Date, Slot: dec.Slot, Reason: err.Error()}
	}
	b.Log.Info().Str("disposition", string(disp)).
		Str("date", dec.Date.Format(appointment.DateLayout)).Str("slot", dec.Slot).
		Msg("qualifying slot routed through confirmation")
	return appointment.Outcome{Kind: appointment.SlotFoundQualifying, Location: loc,
		Date: dec.Date, Slot: dec.Slot}
}

// book drives the booking transaction. Ambiguity is failure: the page must
// show explicit success before the operator is told the appointment moved.
func (b *Bot) book(ctx context.Context, loc appointment.Location, date time.Time, slot string, restart *bool) appointment.Outcome {
	res, err := b.Driver.Book(ctx, date, slot)
	if err != nil {
		*restart = true
		return b.classify(err, loc, restart)
	}
	switch res {
	case appointment.BookBooked:
		return appointment.Outcome{Kind: appointment.BookingSucceeded, Location: loc, Date: date, Slot: slot}
	case appointment.BookAmbiguous:
		*restart = true
		return appointment.Outcome{Kind: appointment.BookingFailed, Location: loc, Date: date, Slot: slot,
			Reason: "page showed neither success nor failure; verify your appointment manually"}
	default:
		*restart = true
		return appointment.Outcome{Kind: appointment.BookingFailed, Location: loc, Date: date, Slot: slot,
			Reason: "site rejected the booking"}
	}
}

// finishAttempt applies an outcome to the run state and decides whether
// the loop is done. Returns done=true with the terminal error, if any.
func (b *Bot) finishAttempt(ctx context.Context, out appointment.Outcome) (bool, error) {
	consecutive := b.run.RecordOutcome(out)
	b.record(ctx, out)
	b.Log.Info().Str("outcome", string(out.Kind)).Str("detail", out.String()).
		Int("consecutive_failures", consecutive).Msg("attempt finished")

	switch out.Kind {
	case appointment.BookingSucceeded:
		b.run.SetStopping()
		b.notify(ctx, fmt.Sprintf("Appointment booked!\n\nDate: %s\nTime: %s\nLocation: %s",
			out.Date.Format(appointment.DateLayout), out.Slot, out.Location))
		b.persistBooking(out.Date)
		return true, nil

	case appointment.BookingFailed:
		b.notify(ctx, fmt.Sprintf("Booking failed for %s %s @ %s: %s",
			out.Date.Format(appointment.DateLayout), out.Slot, out.Location, out.Reason))

	case appointment.FatalError:
		b.run.SetStopping()
		b.notify(ctx, fmt.Sprintf("Fatal error: %s. Bot stopped, intervention required.", out.Reason))
		return true, errors.New(out.Reason)
	}

	if out.Failure() && consecutive > b.Config.MaxConsecutiveFailures {
		b.run.SetStopping()
		b.notify(ctx, fmt.Sprintf("%d consecutive failures (last: %s). Bot stopped, intervention required.",
			consecutive, out.Reason))
		return true, fmt.Errorf("exceeded %d consecutive failures", b.Config.MaxConsecutiveFailures)
	}
	return false, nil
}

// handleConfirmation reacts to a confirmation request reaching a terminal
// state. A confirmed request books from a fresh home-page navigation since
// rotation may have moved the session elsewhere meanwhile.
func (b *Bot) handleConfirmation(ctx context.Context, res confirm.Result, restart *bool) (bool, error) {
	req := res.Request
	switch res.Status {
	case confirm.Confirmed:
		b.Log.Info().Str("id", req.ID).Msg("operator confirmed, booking")
		*restart = true
		if err := b.ensureReady(ctx, req.Location, true); err != nil {
			return b.finishAttempt(ctx, b.classify(err, req.Location, restart))
		}
		*restart = false
		return b.finishAttempt(ctx, b.book(ctx, req.Location, req.Date, req.Slot, restart))

	case confirm.Declined:
		b.notify(ctx, "Skipped. Continuing to monitor for other dates.")

	case confirm.Expired:
		b.notify(ctx, fmt.Sprintf("Confirmation for %s %s timed out with no reply. Continuing to monitor.",
			req.Date.Format(appointment.DateLayout), req.Slot))

	case confirm.Superseded:
		b.Log.Info().Str("id", req.ID).Msg("confirmation superseded by a better slot")
	}
	return false, nil
}

// classify maps a raw driver error onto exactly one outcome variant; this
// is the single place error details are inspected.
func (b *Bot) classify(err error, loc appointment.Location, restart *bool) appointment.Outcome {
	switch {
	case errors.Is(err, appointment.ErrLoginRejected):
		return appointment.Outcome{Kind: appointment.FatalError, Location: loc, Reason: err.Error()}
	case errors.Is(err, appointment.ErrSystemBusy),
		errors.Is(err, appointment.ErrCalendarUnavailable),
		errors.Is(err, appointment.ErrEmptyTimeSlots):
		// The page is in an inconsistent state; the next attempt restarts
		// from the home page instead of retrying in place.
		*restart = true
		return appointment.Outcome{Kind: appointment.TransientError, Location: loc, Reason: err.Error()}
	default:
		return appointment.Outcome{Kind: appointment.TransientError, Location: loc, Reason: err.Error()}
	}
}

// ensureReady brings the session to the point where the calendar can be
// read: optionally restart from home, then select the active location.
// Short in-place retries with backoff cover slow renders; system-busy and
// credential errors are not retried here.
func (b *Bot) ensureReady(ctx context.Context, loc appointment.Location, restart bool) error {
	op := func() error {
		if restart {
			if err := b.Driver.NavigateHome(ctx); err != nil {
				return permanentIfTyped(err)
			}
		}
		if err := b.Driver.SelectLocation(ctx, loc); err != nil {
			return permanentIfTyped(err)
		}
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 2 * time.Second
	eb.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(op, backoff.WithContext(eb, ctx))
}

func (b *Bot) login(ctx context.Context) error {
	op := func() error {
		err := b.Driver.Login(ctx)
		if errors.Is(err, appointment.ErrLoginRejected) {
			return backoff.Permanent(err)
		}
		return err
	}
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 2 * time.Minute
	return backoff.Retry(op, backoff.WithContext(eb, ctx))
}

// replyLoop consumes operator replies: confirmation answers go to the
// gate, commands are answered from run state, everything else is ignored.
func (b *Bot) replyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-b.Notifier.Replies():
			if !ok {
				return
			}
			if b.Gate.HandleReply(r.Text) {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(r.Text)) {
			case "/status", "status":
				b.notify(ctx, b.statusText())
			case "/stop", "stop":
				b.notify(ctx, "Stopping...")
				b.Stop()
			}
		}
	}
}

// shutdown performs the orderly stop path. The deferred driver close and
// gate cancel in Run guarantee neither the session nor the confirmation
// timer survives.
func (b *Bot) shutdown(reason string) error {
	b.run.SetStopping()
	b.Log.Info().Str("reason", reason).Msg("stopping")

	// The run context is already canceled on this path; give the final
	// notification its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b.notify(ctx, "Bot stopped.")
	return ErrStopped
}

func (b *Bot) activeLocation() appointment.Location {
	return b.Config.Locations[b.run.LocationIndex()%len(b.Config.Locations)]
}

func (b *Bot) notify(ctx context.Context, text string) {
	if err := b.Notifier.Send(ctx, text); err != nil {
		b.Log.Warn().Err(err).Str("text", text).Msg("notification failed")
	}
}

func (b *Bot) record(ctx context.Context, out appointment.Outcome) {
	if b.History == nil {
		return
	}
	if err := b.History.Record(ctx, history.FromOutcome(out)); err != nil {
		b.Log.Warn().Err(err).Msg("recording attempt history failed")
	}
}

func (b *Bot) persistBooking(date time.Time) {
	if b.State == nil {
		return
	}
	if err := b.State.SetCurrentBooking(date); err != nil {
		b.Log.Warn().Err(err).Msg("persisting new booking date failed")
	}
}

func (b *Bot) startedText() string {
	c := b.Config.Constraint
	var locs []string
	for _, l := range b.Config.Locations {
		locs = append(locs, l.String())
	}
	mode := "manual confirmation"
	if b.Config.AutoBook {
		mode = "automatic booking"
	}
	current := "none"
	if !c.CurrentBooking.IsZero() {
		current = c.CurrentBooking.Format(appointment.DateLayout)
	}
	return fmt.Sprintf("Bot started (%s).\nLocations: %s\nDate range: %s to %s\nCurrent booking: %s\nChecking every %s.",
		mode, strings.Join(locs, ", "),
		c.Earliest.Format(appointment.DateLayout), c.Latest.Format(appointment.DateLayout),
		current, b.Config.CheckInterval)
}

func (b *Bot) statusText() string {
	st := b.Status()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Attempts: %d\nConsecutive failures: %d\nActive location: %s\n",
		st.Attempts, st.ConsecutiveFailures, st.ActiveLocation)
	if !st.LastSnapshot.IsZero() {
		fmt.Fprintf(&sb, "Last successful read: %s\n", st.LastSnapshot.Format(time.RFC3339))
	}
	if st.LastOutcome != "" {
		fmt.Fprintf(&sb, "Last outcome: %s\n", st.LastOutcome)
	}
	if req, ok := b.Gate.Pending(); ok {
		fmt.Fprintf(&sb, "Awaiting your confirmation for %s %s @ %s.\n",
			req.Date.Format(appointment.DateLayout), req.Slot, req.Location)
	}
	if st.Running {
		sb.WriteString("Monitoring.")
	} else {
		sb.WriteString("Stopped.")
	}
	return sb.String()
}

// permanentIfTyped stops in-place retries for failures that in-place
// retries cannot fix.
func permanentIfTyped(err error) error {
	if errors.Is(err, appointment.ErrLoginRejected) || errors.Is(err, appointment.ErrSystemBusy) {
		return backoff.Permanent(err)
	}
	return err
}
