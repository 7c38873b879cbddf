package confirm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/visawatch/internal/appointment"
	"github.com/example/visawatch/internal/confirm"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	fails bool
}

func (s *recordingSender) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails {
		return errors.New("telegram unreachable")
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

var toronto = appointment.Location{ID: "94", Label: "Toronto"}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := appointment.ParseDate(s)
	require.NoError(t, err)
	return d
}

func awaitResult(t *testing.T, g *confirm.Gate) confirm.Result {
	t.Helper()
	select {
	case res := <-g.Results():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no confirmation result delivered")
		return confirm.Result{}
	}
}

func TestGateConfirmTokens(t *testing.T) {
	for _, token := range []string{"yes", "Y", " CONFIRM ", "ok", "book"} {
		sender := &recordingSender{}
		g := confirm.New(sender, time.Minute, zerolog.Nop())

		disp, err := g.Propose(context.Background(), toronto, date(t, "2026-03-01"), "09:00", nil)
		require.NoError(t, err)
		assert.Equal(t, confirm.ProposalIssued, disp)

		require.True(t, g.HandleReply(token), token)
		res := awaitResult(t, g)
		assert.Equal(t, confirm.Confirmed, res.Status, token)
		assert.Equal(t, date(t, "2026-03-01"), res.Request.Date)
	}
}

func TestGateDeclineTokens(t *testing.T) {
	for _, token := range []string{"no", "N", "cancel", " skip"} {
		g := confirm.New(&recordingSender{}, time.Minute, zerolog.Nop())
		_, err := g.Propose(context.Background(), toronto, date(t, "2026-03-01"), "09:00", nil)
		require.NoError(t, err)

		require.True(t, g.HandleReply(token), token)
		assert.Equal(t, confirm.Declined, awaitResult(t, g).Status, token)
	}
}

func TestGateUnknownReplyNotConsumed(t *testing.T) {
	g := confirm.New(&recordingSender{}, time.Minute, zerolog.Nop())
	_, err := g.Propose(context.Background(), toronto, date(t, "2026-03-01"), "09:00", nil)
	require.NoError(t, err)

	assert.False(t, g.HandleReply("maybe"))
	assert.False(t, g.HandleReply("/status"))

	_, pending := g.Pending()
	assert.True(t, pending, "unknown replies must leave the request outstanding")
}

func TestGateReplyWithoutPendingNotConsumed(t *testing.T) {
	g := confirm.New(&recordingSender{}, time.Minute, zerolog.Nop())
	assert.False(t, g.HandleReply("yes"))
}

func TestGateExpiry(t *testing.T) {
	g := confirm.New(&recordingSender{}, 30*time.Millisecond, zerolog.Nop())
	_, err := g.Propose(context.Background(), toronto, date(t, "2026-03-01"), "09:00", nil)
	require.NoError(t, err)

	res := awaitResult(t, g)
	assert.Equal(t, confirm.Expired, res.Status)

	// A late reply never resolves the expired request.
	assert.False(t, g.HandleReply("yes"))
	_, pending := g.Pending()
	assert.False(t, pending)
}

func TestGateSupersedesWithEarlierDate(t *testing.T) {
	g := confirm.New(&recordingSender{}, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, err := g.Propose(ctx, toronto, date(t, "2026-03-10"), "09:00", nil)
	require.NoError(t, err)

	disp, err := g.Propose(ctx, toronto, date(t, "2026-03-05"), "11:00", nil)
	require.NoError(t, err)
	assert.Equal(t, confirm.ProposalSuperseded, disp)

	res := awaitResult(t, g)
	assert.Equal(t, confirm.Superseded, res.Status)
	assert.Equal(t, date(t, "2026-03-10"), res.Request.Date)

	// The replacement is the one still outstanding.
	req, pending := g.Pending()
	require.True(t, pending)
	assert.Equal(t, date(t, "2026-03-05"), req.Date)

	require.True(t, g.HandleReply("yes"))
	confirmed := awaitResult(t, g)
	assert.Equal(t, confirm.Confirmed, confirmed.Status)
	assert.Equal(t, date(t, "2026-03-05"), confirmed.Request.Date)
}

func TestGateSupersedesWithEarlierTimeSameDate(t *testing.T) {
	g := confirm.New(&recordingSender{}, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, err := g.Propose(ctx, toronto, date(t, "2026-03-10"), "14:00", nil)
	require.NoError(t, err)

	disp, err := g.Propose(ctx, toronto, date(t, "2026-03-10"), "08:30", nil)
	require.NoError(t, err)
	assert.Equal(t, confirm.ProposalSuperseded, disp)
}

func TestGateDropsNonImprovingProposals(t *testing.T) {
	sender := &recordingSender{}
	g := confirm.New(sender, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, err := g.Propose(ctx, toronto, date(t, "2026-03-10"), "09:00", nil)
	require.NoError(t, err)
	sentBefore := sender.count()

	// Same slot again, a later date, and a later time all get dropped.
	for _, p := range []struct {
		d    string
		slot string
	}{
		{"2026-03-10", "09:00"},
		{"2026-03-20", "08:00"},
		{"2026-03-10", "15:00"},
	} {
		disp, err := g.Propose(ctx, toronto, date(t, p.d), p.slot, nil)
		require.NoError(t, err)
		assert.Equal(t, confirm.ProposalDropped, disp)
	}

	assert.Equal(t, sentBefore, sender.count(), "dropped proposals must not message the operator")
	select {
	case res := <-g.Results():
		t.Fatalf("unexpected result %v", res)
	default:
	}
}

func TestGateWithdrawsRequestWhenSendFails(t *testing.T) {
	g := confirm.New(&recordingSender{fails: true}, time.Minute, zerolog.Nop())

	_, err := g.Propose(context.Background(), toronto, date(t, "2026-03-01"), "09:00", nil)
	require.Error(t, err)

	_, pending := g.Pending()
	assert.False(t, pending)
	assert.False(t, g.HandleReply("yes"))
}

func TestGateCancel(t *testing.T) {
	g := confirm.New(&recordingSender{}, time.Minute, zerolog.Nop())
	_, err := g.Propose(context.Background(), toronto, date(t, "2026-03-01"), "09:00", nil)
	require.NoError(t, err)

	g.Cancel()
	_, pending := g.Pending()
	assert.False(t, pending)

	select {
	case res := <-g.Results():
		t.Fatalf("cancel must not deliver a result, got %v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGateProposalTextMentionsAllTimes(t *testing.T) {
	sender := &recordingSender{}
	g := confirm.New(sender, time.Minute, zerolog.Nop())

	_, err := g.Propose(context.Background(), toronto, date(t, "2026-03-01"), "08:30",
		[]string{"08:30", "11:00"})
	require.NoError(t, err)

	require.Equal(t, 1, sender.count())
	assert.Contains(t, sender.sent[0], "2026-03-01")
	assert.Contains(t, sender.sent[0], "08:30")
	assert.Contains(t, sender.sent[0], "Toronto")
	assert.Contains(t, sender.sent[0], "11:00")
}
