package appointment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/visawatch/internal/appointment"
)

// calendarDriver stubs the read half of SessionDriver.
type calendarDriver struct {
	dates    []time.Time
	times    map[string][]string
	calErr   error
	timesErr error
}

func (d *calendarDriver) Login(context.Context) error                                  { return nil }
func (d *calendarDriver) NavigateHome(context.Context) error                           { return nil }
func (d *calendarDriver) SelectLocation(context.Context, appointment.Location) error   { return nil }
func (d *calendarDriver) Close() error                                                 { return nil }
func (d *calendarDriver) Book(context.Context, time.Time, string) (appointment.BookResult, error) {
	return appointment.BookFailed, nil
}

func (d *calendarDriver) ReadCalendar(context.Context) ([]time.Time, error) {
	return d.dates, d.calErr
}

func (d *calendarDriver) ReadTimeSlots(_ context.Context, date time.Time) ([]string, error) {
	if d.timesErr != nil {
		return nil, d.timesErr
	}
	return d.times[date.Format(appointment.DateLayout)], nil
}

func TestReadAvailability(t *testing.T) {
	loc := appointment.Location{ID: "94", Label: "Toronto"}
	drv := &calendarDriver{
		dates: []time.Time{day(t, "2026-03-01"), day(t, "2026-03-05")},
		times: map[string][]string{
			"2026-03-01": {"09:00"},
			"2026-03-05": {"10:00", "11:30"},
		},
	}

	snap, err := appointment.ReadAvailability(context.Background(), drv, loc, 3)
	require.NoError(t, err)
	assert.Equal(t, loc, snap.Location)
	assert.Equal(t, 3, snap.Attempt)
	assert.Len(t, snap.Dates, 2)
	assert.Equal(t, []string{"10:00", "11:30"}, snap.TimesFor(day(t, "2026-03-05")))
}

func TestReadAvailabilityEmptyCalendarIsSuccess(t *testing.T) {
	snap, err := appointment.ReadAvailability(context.Background(), &calendarDriver{},
		appointment.Location{ID: "89", Label: "Calgary"}, 1)
	require.NoError(t, err)
	assert.True(t, snap.Empty())
}

func TestReadAvailabilityPropagatesCalendarError(t *testing.T) {
	drv := &calendarDriver{calErr: appointment.ErrCalendarUnavailable}
	_, err := appointment.ReadAvailability(context.Background(), drv,
		appointment.Location{ID: "94", Label: "Toronto"}, 1)
	assert.ErrorIs(t, err, appointment.ErrCalendarUnavailable)
}

func TestReadAvailabilityPropagatesTimeSlotError(t *testing.T) {
	drv := &calendarDriver{
		dates:    []time.Time{day(t, "2026-03-01")},
		timesErr: appointment.ErrEmptyTimeSlots,
	}
	_, err := appointment.ReadAvailability(context.Background(), drv,
		appointment.Location{ID: "94", Label: "Toronto"}, 1)
	assert.ErrorIs(t, err, appointment.ErrEmptyTimeSlots)
}
