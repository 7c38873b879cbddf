package scraper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/example/visawatch/internal/appointment"
)

// collectDaysJS gathers the selectable days in the datepicker's current
// view as YYYY-MM-DD strings. jQuery UI marks bookable cells with
// data-handler="selectDay".
const collectDaysJS = `(() => {
	const out = [];
	document.querySelectorAll('td[data-handler="selectDay"]').forEach(td => {
		const a = td.querySelector('a');
		if (!a) return;
		const y = td.getAttribute('data-year');
		const m = Number(td.getAttribute('data-month')) + 1;
		const day = a.textContent.trim();
		out.push(y + '-' + String(m).padStart(2, '0') + '-' + String(day).padStart(2, '0'));
	});
	return out;
})()`

const hasNextMonthJS = `(() => {
	const next = document.querySelector('a.ui-datepicker-next');
	return !!next && !next.classList.contains('ui-state-disabled');
})()`

func (d *Driver) ReadCalendar(ctx context.Context) ([]time.Time, error) {
	if err := d.openCalendar(ctx); err != nil {
		return nil, err
	}
	defer d.closeCalendar(ctx)

	maxMonths := d.traversalMonths()
	seen := map[string]bool{}
	var dates []time.Time

	for month := 0; month < maxMonths; month++ {
		var days []string
		if err := d.run(ctx, chromedp.Evaluate(collectDaysJS, &days)); err != nil {
			return nil, fmt.Errorf("collect days: %w", err)
		}
		for _, s := range days {
			if seen[s] {
				continue
			}
			seen[s] = true
			day, err := appointment.ParseDate(s)
			if err != nil {
				d.log.Warn().Str("day", s).Msg("skipping unparseable calendar day")
				continue
			}
			if !d.opts.MaxDate.IsZero() && day.After(d.opts.MaxDate) {
				continue
			}
			dates = append(dates, day)
		}

		var hasNext bool
		if err := d.run(ctx, chromedp.Evaluate(hasNextMonthJS, &hasNext)); err != nil {
			return nil, err
		}
		if !hasNext {
			break
		}
		if err := d.run(ctx,
			chromedp.Click("a.ui-datepicker-next", chromedp.ByQuery),
			chromedp.Sleep(200*time.Millisecond),
		); err != nil {
			return nil, fmt.Errorf("advance month: %w", err)
		}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	d.log.Debug().Int("dates", len(dates)).Msg("calendar read")
	return dates, nil
}

func (d *Driver) ReadTimeSlots(ctx context.Context, date time.Time) ([]string, error) {
	if err := d.selectDate(ctx, date); err != nil {
		return nil, err
	}
	return d.readTimeOptions(ctx, date)
}

// readTimeOptions polls the time dropdown until it populates. The site
// fills it asynchronously after a date is picked; a dropdown that stays
// empty for a selectable date means the page is desynchronized.
func (d *Driver) readTimeOptions(ctx context.Context, date time.Time) ([]string, error) {
	const optionsJS = `(() => {
		const sel = document.querySelector('` + selTimeSelect + `');
		if (!sel) return [];
		const out = [];
		for (const opt of sel.options) {
			const t = opt.textContent.trim();
			if (t && opt.value) out.push(t);
		}
		return out;
	})()`

	deadline := time.Now().Add(5 * time.Second)
	for {
		var times []string
		if err := d.run(ctx, chromedp.Evaluate(optionsJS, &times)); err != nil {
			return nil, err
		}
		if len(times) > 0 {
			return times, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("times for %s: %w",
				date.Format(appointment.DateLayout), appointment.ErrEmptyTimeSlots)
		}
		if err := d.run(ctx, chromedp.Sleep(300*time.Millisecond)); err != nil {
			return nil, err
		}
	}
}

// openCalendar clicks the date field and waits for the picker to render.
func (d *Driver) openCalendar(ctx context.Context) error {
	err := d.run(ctx,
		chromedp.WaitVisible(selDateField, chromedp.ByQuery),
		chromedp.Click(selDateField, chromedp.ByQuery),
		chromedp.WaitVisible(".ui-datepicker-calendar", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("open calendar: %w", appointment.ErrCalendarUnavailable)
	}
	return nil
}

func (d *Driver) closeCalendar(ctx context.Context) {
	// Escape collapses the picker and leaves the form usable.
	_ = d.run(ctx, chromedp.Evaluate(
		`document.activeElement && document.activeElement.blur()`, nil))
}

// selectDate walks the picker to the date's month and clicks its cell.
func (d *Driver) selectDate(ctx context.Context, date time.Time) error {
	if err := d.openCalendar(ctx); err != nil {
		return err
	}

	target := date.Format(appointment.DateLayout)
	clickDayJS := fmt.Sprintf(`(() => {
		for (const td of document.querySelectorAll('td[data-handler="selectDay"]')) {
			const a = td.querySelector('a');
			if (!a) continue;
			const y = td.getAttribute('data-year');
			const m = Number(td.getAttribute('data-month')) + 1;
			const s = y + '-' + String(m).padStart(2, '0') + '-' + String(a.textContent.trim()).padStart(2, '0');
			if (s === %q) { a.click(); return true; }
		}
		return false;
	})()`, target)

	for month := 0; month < d.traversalMonths(); month++ {
		var clicked bool
		if err := d.run(ctx, chromedp.Evaluate(clickDayJS, &clicked)); err != nil {
			return err
		}
		if clicked {
			d.log.Debug().Str("date", target).Msg("date selected")
			return nil
		}
		var hasNext bool
		if err := d.run(ctx, chromedp.Evaluate(hasNextMonthJS, &hasNext)); err != nil {
			return err
		}
		if !hasNext {
			break
		}
		if err := d.run(ctx,
			chromedp.Click("a.ui-datepicker-next", chromedp.ByQuery),
			chromedp.Sleep(200*time.Millisecond),
		); err != nil {
			return err
		}
	}
	return fmt.Errorf("date %s no longer selectable: %w", target, appointment.ErrCalendarUnavailable)
}

// traversalMonths bounds how many months the picker walk visits: up to
// MaxDate when set, two years otherwise.
func (d *Driver) traversalMonths() int {
	const monthCap = 24
	if d.opts.MaxDate.IsZero() {
		return monthCap
	}
	now := time.Now()
	months := (d.opts.MaxDate.Year()-now.Year())*12 + int(d.opts.MaxDate.Month()-now.Month()) + 1
	if months < 1 {
		return 1
	}
	if months > monthCap {
		return monthCap
	}
	return months
}
