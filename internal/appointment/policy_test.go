package appointment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/visawatch/internal/appointment"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := appointment.ParseDate(s)
	require.NoError(t, err)
	return d
}

func snapshot(t *testing.T, times map[string][]string) appointment.Snapshot {
	t.Helper()
	snap := appointment.Snapshot{
		Location: appointment.Location{ID: "94", Label: "Toronto"},
		Times:    times,
		Taken:    time.Now(),
	}
	for s := range times {
		snap.Dates = append(snap.Dates, day(t, s))
	}
	return snap
}

func TestEvaluatePicksEarliestQualifyingDate(t *testing.T) {
	c := appointment.DateConstraint{
		Earliest:       day(t, "2026-02-01"),
		Latest:         day(t, "2026-12-31"),
		CurrentBooking: day(t, "2026-06-01"),
	}
	snap := snapshot(t, map[string][]string{
		"2026-03-05": {"09:00"},
		"2026-03-01": {"10:30"},
	})

	dec := appointment.Evaluate(snap, c)
	require.True(t, dec.Match)
	assert.Equal(t, day(t, "2026-03-01"), dec.Date)
	assert.Equal(t, "10:30", dec.Slot)
}

func TestEvaluateSkipsDatesOutsideRange(t *testing.T) {
	c := appointment.DateConstraint{
		Earliest: day(t, "2026-02-01"),
		Latest:   day(t, "2026-12-31"),
	}
	snap := snapshot(t, map[string][]string{
		"2026-01-15": {"09:00"}, // before earliest
		"2027-01-01": {"09:00"}, // after latest
	})

	dec := appointment.Evaluate(snap, c)
	assert.False(t, dec.Match)
}

func TestEvaluateRequiresImprovementOverCurrentBooking(t *testing.T) {
	c := appointment.DateConstraint{
		Earliest:       day(t, "2026-02-01"),
		Latest:         day(t, "2026-12-31"),
		CurrentBooking: day(t, "2026-06-01"),
	}

	// Same day as the current booking does not qualify.
	dec := appointment.Evaluate(snapshot(t, map[string][]string{
		"2026-06-01": {"09:00"},
		"2026-08-10": {"09:00"},
	}), c)
	assert.False(t, dec.Match)

	// One day earlier does.
	dec = appointment.Evaluate(snapshot(t, map[string][]string{
		"2026-05-31": {"09:00"},
	}), c)
	require.True(t, dec.Match)
	assert.Equal(t, day(t, "2026-05-31"), dec.Date)
}

func TestEvaluateBreaksTiesByEarliestTime(t *testing.T) {
	c := appointment.DateConstraint{
		Earliest: day(t, "2026-02-01"),
		Latest:   day(t, "2026-12-31"),
	}
	snap := snapshot(t, map[string][]string{
		"2026-03-01": {"13:15", "08:30", "11:00"},
	})

	dec := appointment.Evaluate(snap, c)
	require.True(t, dec.Match)
	assert.Equal(t, "08:30", dec.Slot)
}

func TestEvaluateFallsBackToFirstUnparseableTime(t *testing.T) {
	c := appointment.DateConstraint{
		Earliest: day(t, "2026-02-01"),
		Latest:   day(t, "2026-12-31"),
	}
	snap := snapshot(t, map[string][]string{
		"2026-03-01": {"morning", "afternoon"},
	})

	dec := appointment.Evaluate(snap, c)
	require.True(t, dec.Match)
	assert.Equal(t, "morning", dec.Slot)
}

func TestEvaluateSkipsQualifyingDateWithNoTimes(t *testing.T) {
	c := appointment.DateConstraint{
		Earliest: day(t, "2026-02-01"),
		Latest:   day(t, "2026-12-31"),
	}
	snap := snapshot(t, map[string][]string{
		"2026-03-01": {},
		"2026-03-02": {"09:00"},
	})

	dec := appointment.Evaluate(snap, c)
	require.True(t, dec.Match)
	assert.Equal(t, day(t, "2026-03-02"), dec.Date)
}

func TestEvaluateEmptySnapshot(t *testing.T) {
	c := appointment.DateConstraint{
		Earliest: day(t, "2026-02-01"),
		Latest:   day(t, "2026-12-31"),
	}
	snap := snapshot(t, map[string][]string{})

	assert.True(t, snap.Empty())
	assert.False(t, appointment.Evaluate(snap, c).Match)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	c := appointment.DateConstraint{
		Earliest: day(t, "2026-02-01"),
		Latest:   day(t, "2026-12-31"),
	}
	snap := snapshot(t, map[string][]string{
		"2026-04-10": {"09:00", "10:00"},
		"2026-02-20": {"14:00"},
		"2026-07-01": {"08:00"},
	})

	first := appointment.Evaluate(snap, c)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, appointment.Evaluate(snap, c))
	}
}
