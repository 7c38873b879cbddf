package history_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/visawatch/internal/appointment"
	"github.com/example/visawatch/internal/history"
)

func TestFromOutcome(t *testing.T) {
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := appointment.Outcome{
		Kind:     appointment.BookingSucceeded,
		Location: appointment.Location{ID: "94", Label: "Toronto"},
		Date:     date,
		Slot:     "09:00",
	}

	a := history.FromOutcome(out)
	assert.Equal(t, "Toronto", a.Location)
	assert.Equal(t, "booking_succeeded", a.Outcome)
	require.NotNil(t, a.SlotDate)
	assert.Equal(t, date, *a.SlotDate)
	assert.Equal(t, "09:00", a.SlotTime)
}

func TestFromOutcomeWithoutSlot(t *testing.T) {
	a := history.FromOutcome(appointment.Outcome{
		Kind:     appointment.TransientError,
		Location: appointment.Location{ID: "89", Label: "Calgary"},
		Reason:   "system is busy",
	})
	assert.Nil(t, a.SlotDate)
	assert.Equal(t, "system is busy", a.Detail)
}
