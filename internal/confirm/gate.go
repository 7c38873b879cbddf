// Package confirm implements the manual-confirmation gate: a single
// outstanding yes/no question to the operator with a wall-clock timeout.
package confirm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/visawatch/internal/appointment"
)

// Status is a terminal state of a confirmation request.
type Status string

const (
	Confirmed  Status = "confirmed"
	Declined   Status = "declined"
	Expired    Status = "expired"
	Superseded Status = "superseded"
)

// Disposition reports what Propose did with a proposal.
type Disposition string

const (
	ProposalIssued     Disposition = "issued"
	ProposalSuperseded Disposition = "superseded" // issued, preempting the pending request
	ProposalDropped    Disposition = "dropped"    // not better than the pending request
)

// Request is one outstanding confirmation question.
type Request struct {
	ID        string
	Location  appointment.Location
	Date      time.Time
	Slot      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Result pairs a request with the terminal state it reached.
type Result struct {
	Request Request
	Status  Status
}

// Sender is the outbound half of the notifier the gate talks through.
type Sender interface {
	Send(ctx context.Context, text string) error
}

var affirmative = map[string]bool{"yes": true, "y": true, "confirm": true, "ok": true, "book": true}
var negative = map[string]bool{"no": true, "n": true, "cancel": true, "skip": true}

// Gate holds at most one outstanding request at a time. Terminal results
// are delivered on Results; the orchestrator selects over that channel
// alongside its stop signal, so a timeout fires even when no availability
// attempt is running.
type Gate struct {
	sender  Sender
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	pending *Request
	timer   *time.Timer
	results chan Result

	now func() time.Time
}

func New(sender Sender, timeout time.Duration, log zerolog.Logger) *Gate {
	return &Gate{
		sender:  sender,
		timeout: timeout,
		log:     log,
		results: make(chan Result, 4),
		now:     time.Now,
	}
}

// Results delivers each request's terminal state exactly once.
func (g *Gate) Results() <-chan Result { return g.results }

// Pending returns the outstanding request, if any.
func (g *Gate) Pending() (Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return Request{}, false
	}
	return *g.pending, true
}

// Propose asks the operator to confirm booking date/slot at loc. If a
// request is already outstanding, a strictly better proposal (earlier
// date, or same date with an earlier slot) supersedes it; anything else is
// dropped silently to avoid spamming duplicate questions.
func (g *Gate) Propose(ctx context.Context, loc appointment.Location, date time.Time, slot string, times []string) (Disposition, error) {
	g.mu.Lock()
	disp := ProposalIssued
	var superseded *Result
	if g.pending != nil {
		if !strictlyBetter(date, slot, g.pending.Date, g.pending.Slot) {
			g.mu.Unlock()
			return ProposalDropped, nil
		}
		old := *g.pending
		g.stopTimerLocked()
		g.pending = nil
		superseded = &Result{Request: old, Status: Superseded}
		disp = ProposalSuperseded
	}

	req := Request{
		ID:        uuid.NewString(),
		Location:  loc,
		Date:      date,
		Slot:      slot,
		IssuedAt:  g.now(),
		ExpiresAt: g.now().Add(g.timeout),
	}
	g.pending = &req
	id := req.ID
	g.timer = time.AfterFunc(g.timeout, func() { g.expire(id) })
	g.mu.Unlock()

	if superseded != nil {
		g.deliver(*superseded)
		g.log.Info().Str("id", superseded.Request.ID).
			Str("date", date.Format(appointment.DateLayout)).
			Msg("pending confirmation superseded by earlier slot")
	}

	if err := g.sender.Send(ctx, proposalText(req, times)); err != nil {
		// The question never reached the operator; withdraw it rather than
		// leaving a request nobody can answer.
		g.mu.Lock()
		if g.pending != nil && g.pending.ID == id {
			g.stopTimerLocked()
			g.pending = nil
		}
		g.mu.Unlock()
		return disp, fmt.Errorf("send confirmation request: %w", err)
	}
	return disp, nil
}

// HandleReply maps an operator reply onto the outstanding request.
// Returns true when the reply was consumed. Unknown text and replies with
// no outstanding request are not consumed; a late reply after expiry never
// resolves anything.
func (g *Gate) HandleReply(text string) bool {
	token := strings.ToLower(strings.TrimSpace(text))

	g.mu.Lock()
	if g.pending == nil {
		g.mu.Unlock()
		return false
	}
	var status Status
	switch {
	case affirmative[token]:
		status = Confirmed
	case negative[token]:
		status = Declined
	default:
		g.mu.Unlock()
		return false
	}
	req := *g.pending
	g.stopTimerLocked()
	g.pending = nil
	g.mu.Unlock()

	g.deliver(Result{Request: req, Status: status})
	return true
}

// Cancel withdraws any outstanding request and stops its timer. Used on
// orchestrator stop; no result is delivered.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopTimerLocked()
	g.pending = nil
}

func (g *Gate) expire(id string) {
	g.mu.Lock()
	if g.pending == nil || g.pending.ID != id {
		g.mu.Unlock()
		return
	}
	req := *g.pending
	g.pending = nil
	g.timer = nil
	g.mu.Unlock()

	g.deliver(Result{Request: req, Status: Expired})
}

func (g *Gate) deliver(r Result) {
	select {
	case g.results <- r:
	default:
		// Results is buffered beyond the single-flight depth; overflow
		// means the consumer is gone, so log instead of blocking a timer
		// goroutine forever.
		g.log.Error().Str("id", r.Request.ID).Str("status", string(r.Status)).
			Msg("dropping confirmation result: no consumer")
	}
}

func (g *Gate) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func strictlyBetter(date time.Time, slot string, pendingDate time.Time, pendingSlot string) bool {
	if date.Before(pendingDate) {
		return true
	}
	if !date.Equal(pendingDate) {
		return false
	}
	a, okA := parseClock(slot)
	b, okB := parseClock(pendingSlot)
	return okA && okB && a.Before(b)
}

func parseClock(s string) (time.Time, bool) {
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM"} {
		if at, err := time.Parse(layout, s); err == nil {
			return at, true
		}
	}
	return time.Time{}, false
}

func proposalText(req Request, times []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Appointment available!\n\nDate: %s\nTime: %s\nLocation: %s\n",
		req.Date.Format(appointment.DateLayout), req.Slot, req.Location)
	if len(times) > 1 {
		fmt.Fprintf(&b, "All times: %s\n", strings.Join(times, ", "))
	}
	fmt.Fprintf(&b, "\nReply yes to book or no to skip (expires %s).",
		req.ExpiresAt.Format("15:04:05"))
	return b.String()
}
