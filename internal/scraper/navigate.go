package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/example/visawatch/internal/appointment"
)

func (d *Driver) NavigateHome(ctx context.Context) error {
	d.log.Debug().Msg("navigating to home")
	err := d.run(ctx,
		chromedp.Navigate(d.homeURL()),
		chromedp.WaitVisible(`//a[contains(text(), 'Continue')]`),
		chromedp.Click(`//a[contains(text(), 'Continue')]`),
	)
	if err != nil {
		return fmt.Errorf("navigate home: %w", err)
	}
	return nil
}

func (d *Driver) SelectLocation(ctx context.Context, loc appointment.Location) error {
	var location string
	if err := d.run(ctx, chromedp.Location(&location)); err != nil {
		return err
	}
	if !strings.Contains(location, "/appointment") {
		if err := d.openReschedule(ctx); err != nil {
			return err
		}
	}

	err := d.run(ctx,
		chromedp.WaitVisible(selFacility, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(`(() => {
			const sel = document.querySelector(%q);
			sel.value = %q;
			sel.dispatchEvent(new Event('change', { bubbles: true }));
		})()`, selFacility, loc.ID), nil),
	)
	if err != nil {
		return fmt.Errorf("select location %s: %w", loc, err)
	}

	busy, err := d.systemBusy(ctx)
	if err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("selecting %s: %w", loc, appointment.ErrSystemBusy)
	}
	d.log.Debug().Str("location", loc.String()).Msg("location selected")
	return nil
}

// openReschedule expands the Reschedule Appointment accordion on the group
// page and follows its button to the appointment form.
func (d *Driver) openReschedule(ctx context.Context) error {
	err := d.run(ctx,
		chromedp.WaitVisible(`//a[@class='accordion-title'][.//h5[contains(text(), 'Reschedule Appointment')]]`),
		chromedp.Click(`//a[@class='accordion-title'][.//h5[contains(text(), 'Reschedule Appointment')]]`),
		chromedp.Click(`//a[contains(@href, '/appointment') and contains(@class, 'button')]`),
		chromedp.WaitVisible(selFacility, chromedp.ByQuery),
	)
	if err != nil {
		busy, berr := d.systemBusy(ctx)
		if berr == nil && busy {
			return fmt.Errorf("opening reschedule: %w", appointment.ErrSystemBusy)
		}
		return fmt.Errorf("open reschedule page: %w", err)
	}
	return nil
}
