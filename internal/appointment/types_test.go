package appointment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/visawatch/internal/appointment"
)

func TestParseDate(t *testing.T) {
	d, err := appointment.ParseDate("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = appointment.ParseDate("03/01/2026")
	assert.Error(t, err)
	_, err = appointment.ParseDate("")
	assert.Error(t, err)
}

func TestConstraintValidate(t *testing.T) {
	ok := appointment.DateConstraint{
		Earliest: day(t, "2026-02-01"),
		Latest:   day(t, "2026-12-31"),
	}
	assert.NoError(t, ok.Validate())

	inverted := appointment.DateConstraint{
		Earliest: day(t, "2026-12-31"),
		Latest:   day(t, "2026-02-01"),
	}
	assert.Error(t, inverted.Validate())

	assert.Error(t, appointment.DateConstraint{}.Validate())
}

func TestQualifiesBoundsAreInclusive(t *testing.T) {
	c := appointment.DateConstraint{
		Earliest: day(t, "2026-02-01"),
		Latest:   day(t, "2026-12-31"),
	}
	assert.True(t, c.Qualifies(day(t, "2026-02-01")))
	assert.True(t, c.Qualifies(day(t, "2026-12-31")))
	assert.False(t, c.Qualifies(day(t, "2026-01-31")))
	assert.False(t, c.Qualifies(day(t, "2027-01-01")))
}

func TestOutcomeFailure(t *testing.T) {
	failures := []appointment.OutcomeKind{
		appointment.BookingFailed,
		appointment.TransientError,
		appointment.FatalError,
	}
	for _, k := range failures {
		assert.True(t, appointment.Outcome{Kind: k}.Failure(), string(k))
	}

	successes := []appointment.OutcomeKind{
		appointment.NoSlotsFound,
		appointment.SlotFoundNotQualifying,
		appointment.SlotFoundQualifying,
		appointment.BookingSucceeded,
	}
	for _, k := range successes {
		assert.False(t, appointment.Outcome{Kind: k}.Failure(), string(k))
	}
}

func TestSnapshotTimesFor(t *testing.T) {
	snap := snapshot(t, map[string][]string{
		"2026-03-01": {"09:00", "10:00"},
	})
	assert.Equal(t, []string{"09:00", "10:00"}, snap.TimesFor(day(t, "2026-03-01")))
	assert.Empty(t, snap.TimesFor(day(t, "2026-03-02")))
}
