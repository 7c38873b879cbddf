package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/visawatch/internal/appointment"
)

// Consulates maps location labels to the facility ids used by the site's
// location dropdown.
var Consulates = map[string]string{
	"Calgary":   "89",
	"Halifax":   "90",
	"Montreal":  "91",
	"Ottawa":    "92",
	"Quebec":    "93",
	"Toronto":   "94",
	"Vancouver": "95",
}

type Config struct {
	Email    string
	Password string
	LoginURL string

	TelegramToken  string
	TelegramChatID int64

	Locations  []appointment.Location // one or two, preference order
	Constraint appointment.DateConstraint

	CheckInterval          time.Duration
	MaxConsecutiveFailures int
	ConfirmTimeout         time.Duration
	AutoBook               bool

	Headless        bool
	StateFile       string
	StatePassphrase string

	// Optional attempt-history database.
	DatabaseURL string

	// Optional status web UI.
	HTTPAddr          string
	WebPasswordBcrypt string
	CookieHashKey     []byte
	CookieBlockKey    []byte

	LogJSON bool
}

// FromEnv loads configuration from the environment, reading a .env file
// first when one is present. Credentials may be absent here when they live
// sealed in the state file; the run command resolves that before starting.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Email:           strings.TrimSpace(os.Getenv("VISA_EMAIL")),
		Password:        os.Getenv("VISA_PASSWORD"),
		LoginURL:        getenv("VISA_URL", "https://ais.usvisa-info.com/en-ca/niv/users/sign_in"),
		TelegramToken:   strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		StateFile:       getenv("STATE_FILE", "visawatch_state.json"),
		StatePassphrase: os.Getenv("STATE_PASSPHRASE"),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		HTTPAddr:        strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		Headless:        getenv("HEADLESS", "true") != "false",
		AutoBook:        os.Getenv("AUTO_BOOK") == "1",
		LogJSON:         os.Getenv("LOG_JSON") == "1",
	}

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	primary, err := LookupLocation(getenv("LOCATION", "Toronto"))
	if err != nil {
		return Config{}, err
	}
	cfg.Locations = []appointment.Location{primary}
	if v := strings.TrimSpace(os.Getenv("SECOND_LOCATION")); v != "" {
		second, err := LookupLocation(v)
		if err != nil {
			return Config{}, err
		}
		if second.ID == primary.ID {
			return Config{}, fmt.Errorf("SECOND_LOCATION must differ from LOCATION")
		}
		cfg.Locations = append(cfg.Locations, second)
	}

	cfg.Constraint.Earliest, err = parseDateEnv("EARLIEST_ACCEPTABLE_DATE", "2026-01-31")
	if err != nil {
		return Config{}, err
	}
	cfg.Constraint.Latest, err = parseDateEnv("LATEST_ACCEPTABLE_DATE", "2026-12-31")
	if err != nil {
		return Config{}, err
	}
	if v := strings.TrimSpace(os.Getenv("CURRENT_BOOKING_DATE")); v != "" {
		cfg.Constraint.CurrentBooking, err = appointment.ParseDate(v)
		if err != nil {
			return Config{}, fmt.Errorf("CURRENT_BOOKING_DATE: %w", err)
		}
	}
	if err := cfg.Constraint.Validate(); err != nil {
		return Config{}, err
	}

	checkSec, err := intEnv("CHECK_INTERVAL", 30)
	if err != nil || checkSec < 1 {
		return Config{}, fmt.Errorf("invalid CHECK_INTERVAL")
	}
	cfg.CheckInterval = time.Duration(checkSec) * time.Second

	cfg.MaxConsecutiveFailures, err = intEnv("MAX_CONSECUTIVE_FAILURES", 5)
	if err != nil || cfg.MaxConsecutiveFailures < 1 {
		return Config{}, fmt.Errorf("invalid MAX_CONSECUTIVE_FAILURES")
	}

	confirmSec, err := intEnv("CONFIRM_TIMEOUT_SECONDS", 300)
	if err != nil || confirmSec < 1 {
		return Config{}, fmt.Errorf("invalid CONFIRM_TIMEOUT_SECONDS")
	}
	cfg.ConfirmTimeout = time.Duration(confirmSec) * time.Second

	if !cfg.AutoBook && cfg.TelegramToken == "" {
		return Config{}, fmt.Errorf("manual confirmation mode needs TELEGRAM_BOT_TOKEN (or set AUTO_BOOK=1)")
	}

	if cfg.HTTPAddr != "" {
		cfg.WebPasswordBcrypt = strings.TrimSpace(os.Getenv("WEB_PASSWORD_BCRYPT"))
		if cfg.WebPasswordBcrypt == "" {
			return Config{}, fmt.Errorf("HTTP_ADDR is set but WEB_PASSWORD_BCRYPT is missing")
		}
		cfg.CookieHashKey, err = b64Env("COOKIE_HASH_KEY")
		if err != nil {
			return Config{}, err
		}
		cfg.CookieBlockKey, err = b64Env("COOKIE_BLOCK_KEY")
		if err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// LookupLocation resolves a consulate label (case-insensitive) to its
// facility id.
func LookupLocation(label string) (appointment.Location, error) {
	for name, id := range Consulates {
		if strings.EqualFold(name, strings.TrimSpace(label)) {
			return appointment.Location{ID: id, Label: name}, nil
		}
	}
	known := make([]string, 0, len(Consulates))
	for name := range Consulates {
		known = append(known, name)
	}
	sort.Strings(known)
	return appointment.Location{}, fmt.Errorf("unknown location %q (known: %s)", label, strings.Join(known, ", "))
}

func parseDateEnv(key, def string) (time.Time, error) {
	d, err := appointment.ParseDate(getenv(key, def))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func b64Env(key string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64) when the web UI is enabled", key)
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
