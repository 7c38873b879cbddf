// Package scraper drives the visa appointment site through a headless
// Chrome session and exposes it as an appointment.SessionDriver.
package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/example/visawatch/internal/appointment"
)

const (
	selEmail        = "#user_email"
	selPassword     = "#user_password"
	selSignInSubmit = `input[name="commit"]`
	selFacility     = "#appointments_consulate_appointment_facility_id"
	selDateField    = "#appointments_consulate_appointment_date"
	selTimeSelect   = "#appointments_consulate_appointment_time"
	selSubmit       = "#appointments_submit"
)

type Options struct {
	Email    string
	Password string
	LoginURL string
	Headless bool

	// Timeout bounds each page interaction.
	Timeout time.Duration

	// MaxDate bounds how far the calendar traversal walks; zero means the
	// default two years.
	MaxDate time.Time
}

// Driver is a SessionDriver over one Chrome tab. Not safe for concurrent
// use; the orchestrator runs one attempt at a time by construction.
type Driver struct {
	opts Options
	log  zerolog.Logger

	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func New(opts Options, log zerolog.Logger) *Driver {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 900),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)
	return &Driver{
		opts:        opts,
		log:         log,
		tab:         tab,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}
}

// run executes chromedp actions under the driver's own timeout. The
// caller's context is only consulted for cancellation up front: chromedp
// actions must run on the tab's context chain.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("browser session closed")
	}
	d.mu.Unlock()

	tctx, cancel := context.WithTimeout(d.tab, d.opts.Timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

func (d *Driver) Login(ctx context.Context) error {
	d.log.Info().Str("url", d.opts.LoginURL).Msg("logging in")

	err := d.run(ctx,
		chromedp.Navigate(d.opts.LoginURL),
		chromedp.WaitVisible(selEmail, chromedp.ByQuery),
		chromedp.SendKeys(selEmail, d.opts.Email, chromedp.ByQuery),
		chromedp.SendKeys(selPassword, d.opts.Password, chromedp.ByQuery),
		// The sign-in form hides its policy checkbox behind a styled
		// label; toggle it from script like the label click would.
		chromedp.Evaluate(`(() => {
			const box = document.querySelector('input[type="checkbox"]');
			if (box && !box.checked) box.click();
		})()`, nil),
		chromedp.Click(selSignInSubmit, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("sign-in form: %w", err)
	}

	// The page either moves on to the account screen or re-renders the
	// form with an error banner.
	var location string
	var bodyText string
	err = d.run(ctx,
		chromedp.Sleep(3*time.Second),
		chromedp.Location(&location),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &bodyText),
	)
	if err != nil {
		return fmt.Errorf("after sign-in: %w", err)
	}
	lower := strings.ToLower(bodyText)
	if strings.Contains(lower, "invalid email or password") ||
		strings.Contains(lower, "your account is locked") {
		return appointment.ErrLoginRejected
	}
	if strings.Contains(location, "/users/sign_in") {
		return fmt.Errorf("still on sign-in page after submit")
	}
	d.log.Info().Msg("login successful")
	return nil
}

// systemBusy checks for the site's overload banner.
func (d *Driver) systemBusy(ctx context.Context) (bool, error) {
	var text string
	err := d.run(ctx, chromedp.Evaluate(`(() => {
		let t = "";
		document.querySelectorAll('.error, .alert, .alert-box, [class*="error"]').forEach(el => {
			if (el.offsetParent !== null) t += " " + el.innerText;
		});
		return t.toLowerCase();
	})()`, &text))
	if err != nil {
		return false, err
	}
	for _, kw := range []string{"system is busy", "overloaded", "temporarily unavailable", "try again later"} {
		if strings.Contains(text, kw) {
			return true, nil
		}
	}
	return false, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.tabCancel()
	d.allocCancel()
	d.log.Info().Msg("browser closed")
	return nil
}

// homeURL derives the account landing page from the sign-in URL.
func (d *Driver) homeURL() string {
	if i := strings.Index(d.opts.LoginURL, "/users/sign_in"); i > 0 {
		return d.opts.LoginURL[:i]
	}
	return d.opts.LoginURL
}
