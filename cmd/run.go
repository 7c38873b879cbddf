package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/visawatch/internal/appointment"
	"github.com/example/visawatch/internal/auth"
	"github.com/example/visawatch/internal/bot"
	"github.com/example/visawatch/internal/config"
	"github.com/example/visawatch/internal/confirm"
	"github.com/example/visawatch/internal/db"
	"github.com/example/visawatch/internal/history"
	"github.com/example/visawatch/internal/migrate"
	"github.com/example/visawatch/internal/notify"
	"github.com/example/visawatch/internal/scraper"
	"github.com/example/visawatch/internal/statefile"
	"github.com/example/visawatch/internal/web"
)

func newRunCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring bot until it books, fails fatally, or is stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			log := newLogger(cfg.LogJSON)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			store, err := statefile.Open(cfg.StateFile, cfg.StatePassphrase)
			if err != nil {
				return err
			}
			if err := resolveCredentials(&cfg, store, log); err != nil {
				return err
			}
			// A booking made by an earlier run tightens the constraint.
			if persisted, ok := store.CurrentBooking(); ok {
				if cfg.Constraint.CurrentBooking.IsZero() || persisted.Before(cfg.Constraint.CurrentBooking) {
					log.Info().Str("date", persisted.Format(appointment.DateLayout)).
						Msg("using persisted booking date from state file")
					cfg.Constraint.CurrentBooking = persisted
				}
			}
			if err := store.SetSelectedLocation(cfg.Locations[0].Label); err != nil {
				log.Warn().Err(err).Msg("persisting selected location")
			}

			notifier, err := newNotifier(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer notifier.Close()

			var repo *history.Repo
			if cfg.DatabaseURL != "" {
				d, err := db.Open(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer d.Close()
				if err := d.Ping(ctx); err != nil {
					return fmt.Errorf("db ping: %w", err)
				}
				if migrateUp {
					if err := migrate.Up(ctx, d); err != nil {
						return err
					}
				}
				repo = history.NewRepo(d)
			}

			driver := scraper.New(scraper.Options{
				Email:    cfg.Email,
				Password: cfg.Password,
				LoginURL: cfg.LoginURL,
				Headless: cfg.Headless,
				MaxDate:  cfg.Constraint.Latest,
			}, log.With().Str("component", "scraper").Logger())

			gate := confirm.New(notifier, cfg.ConfirmTimeout,
				log.With().Str("component", "confirm").Logger())

			b := &bot.Bot{
				Config: bot.Config{
					Locations:              cfg.Locations,
					Constraint:             cfg.Constraint,
					CheckInterval:          cfg.CheckInterval,
					MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
					AutoBook:               cfg.AutoBook,
				},
				Driver:   driver,
				Notifier: notifier,
				Gate:     gate,
				History:  repo,
				State:    store,
				Log:      log.With().Str("component", "bot").Logger(),
			}

			if cfg.HTTPAddr != "" {
				ws := &web.Server{
					Auth:    auth.NewStore(cfg.WebPasswordBcrypt, cfg.CookieHashKey, cfg.CookieBlockKey),
					Status:  b.Status,
					History: repo,
					Log:     log.With().Str("component", "web").Logger(),
				}
				go func() {
					if err := web.Start(ctx, cfg.HTTPAddr, ws.Routes()); err != nil {
						log.Error().Err(err).Msg("web server")
					}
				}()
			}

			err = b.Run(ctx)
			if errors.Is(err, bot.ErrStopped) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}

// resolveCredentials fills site credentials from the sealed state file
// when the environment does not provide them, and seals environment
// credentials for next time when a passphrase is configured.
func resolveCredentials(cfg *config.Config, store *statefile.Store, log zerolog.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		creds, ok, err := store.Credentials()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("VISA_EMAIL and VISA_PASSWORD are required (none sealed in %s)", store.Path())
		}
		cfg.Email, cfg.Password = creds.Email, creds.Password
		log.Info().Msg("using sealed credentials from state file")
		return nil
	}
	if cfg.StatePassphrase != "" {
		if err := store.SealCredentials(statefile.Credentials{Email: cfg.Email, Password: cfg.Password}); err != nil {
			log.Warn().Err(err).Msg("sealing credentials to state file")
		}
	}
	return nil
}

func newNotifier(ctx context.Context, cfg config.Config, log zerolog.Logger) (notify.Notifier, error) {
	if cfg.TelegramToken == "" {
		log.Warn().Msg("no TELEGRAM_BOT_TOKEN; notifications go to the log only")
		return notify.NewLogNotifier(log), nil
	}
	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID,
		log.With().Str("component", "telegram").Logger())
	if err != nil {
		return nil, err
	}
	if cfg.TelegramChatID == 0 {
		log.Info().Msg("TELEGRAM_CHAT_ID not set; send /start to the bot to pair")
		if err := tg.WaitForChat(ctx, time.Minute); err != nil {
			tg.Close()
			return nil, err
		}
	}
	return tg, nil
}

func newLogger(jsonOut bool) zerolog.Logger {
	if jsonOut {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}
