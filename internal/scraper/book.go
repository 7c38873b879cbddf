package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/example/visawatch/internal/appointment"
)

// Book completes the reschedule transaction: pick the date, pick the time,
// submit, accept the confirmation modal, then read the page's verdict.
// Anything short of an explicit success banner is reported as failed or
// ambiguous, never as success.
func (d *Driver) Book(ctx context.Context, date time.Time, slot string) (appointment.BookResult, error) {
	if err := d.selectDate(ctx, date); err != nil {
		return appointment.BookFailed, err
	}

	times, err := d.readTimeOptions(ctx, date)
	if err != nil {
		return appointment.BookFailed, err
	}
	if !containsTime(times, slot) {
		d.log.Warn().Str("slot", slot).Strs("offered", times).Msg("requested time no longer offered")
		return appointment.BookFailed, nil
	}

	pickTimeJS := fmt.Sprintf(`(() => {
		const sel = document.querySelector('`+selTimeSelect+`');
		for (const opt of sel.options) {
			if (opt.textContent.trim() === %q) {
				sel.value = opt.value;
				sel.dispatchEvent(new Event('change', { bubbles: true }));
				return true;
			}
		}
		return false;
	})()`, slot)

	var picked bool
	if err := d.run(ctx, chromedp.Evaluate(pickTimeJS, &picked)); err != nil {
		return appointment.BookFailed, err
	}
	if !picked {
		return appointment.BookFailed, nil
	}

	d.log.Info().Str("date", date.Format(appointment.DateLayout)).Str("slot", slot).
		Msg("submitting reschedule")
	if err := d.run(ctx,
		chromedp.Click(selSubmit, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	); err != nil {
		return appointment.BookAmbiguous, fmt.Errorf("submit: %w", err)
	}

	if err := d.acceptConfirmModal(ctx); err != nil {
		// The modal may legitimately be absent when the form submits
		// directly; only log and move on to the verdict.
		d.log.Debug().Err(err).Msg("no confirmation modal handled")
	}

	return d.bookingVerdict(ctx)
}

// acceptConfirmModal clicks through the data-confirm reveal modal the site
// shows before committing a reschedule.
func (d *Driver) acceptConfirmModal(ctx context.Context) error {
	const confirmJS = `(() => {
		const modal = document.querySelector('.reveal-modal, .reveal');
		if (!modal || modal.offsetParent === null) return false;
		const buttons = modal.querySelectorAll('a.button, button');
		for (const b of buttons) {
			if (/confirm/i.test(b.textContent)) { b.click(); return true; }
		}
		const primary = modal.querySelector('.button.primary, button.primary');
		if (primary) { primary.click(); return true; }
		return false;
	})()`

	deadline := time.Now().Add(3 * time.Second)
	for {
		var clicked bool
		if err := d.run(ctx, chromedp.Evaluate(confirmJS, &clicked)); err != nil {
			return err
		}
		if clicked {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("confirmation modal not found")
		}
		if err := d.run(ctx, chromedp.Sleep(200*time.Millisecond)); err != nil {
			return err
		}
	}
}

// bookingVerdict reads the post-submit page. Explicit success text means
// booked; explicit error text means failed; anything else is ambiguous and
// the caller must tell the operator to verify manually.
func (d *Driver) bookingVerdict(ctx context.Context) (appointment.BookResult, error) {
	var bodyText string
	err := d.run(ctx,
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`document.body ? document.body.innerText.toLowerCase() : ""`, &bodyText),
	)
	if err != nil {
		return appointment.BookAmbiguous, err
	}

	for _, s := range []string{"successfully scheduled", "appointment has been scheduled", "confirmation instructions"} {
		if strings.Contains(bodyText, s) {
			return appointment.BookBooked, nil
		}
	}
	for _, s := range []string{"could not be scheduled", "no longer available", "failed", "error performing your request"} {
		if strings.Contains(bodyText, s) {
			return appointment.BookFailed, nil
		}
	}
	return appointment.BookAmbiguous, nil
}

func containsTime(times []string, slot string) bool {
	for _, t := range times {
		if t == slot {
			return true
		}
	}
	return false
}
