// Package statefile persists the small bits of session state that survive
// restarts: the tightened booking date after a success, the selected
// location, and (optionally) the site credentials sealed under the
// operator's passphrase.
package statefile

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/example/visawatch/internal/appointment"
	"github.com/example/visawatch/internal/crypto"
)

type fileState struct {
	CurrentBooking    string `json:"current_booking,omitempty"`
	SelectedLocation  string `json:"selected_location,omitempty"`
	LastCheckedAt     string `json:"last_checked_at,omitempty"`
	CredentialSalt    string `json:"credential_salt,omitempty"`
	SealedCredentials string `json:"sealed_credentials,omitempty"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Store reads and writes the state file. Writes go through a rename so a
// crash mid-write cannot corrupt the previous state.
type Store struct {
	path       string
	passphrase string

	mu    sync.Mutex
	state fileState
}

func Open(path, passphrase string) (*Store, error) {
	s := &Store{path: path, passphrase: passphrase}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(b, &s.state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// CurrentBooking returns the persisted booking date, if any.
func (s *Store) CurrentBooking() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CurrentBooking == "" {
		return time.Time{}, false
	}
	d, err := appointment.ParseDate(s.state.CurrentBooking)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// SetCurrentBooking records a new booking date after a successful
// reschedule, so a restarted bot resumes with the tightened constraint.
func (s *Store) SetCurrentBooking(d time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentBooking = d.Format(appointment.DateLayout)
	s.state.LastCheckedAt = time.Now().Format(time.RFC3339)
	return s.saveLocked()
}

func (s *Store) SelectedLocation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SelectedLocation
}

func (s *Store) SetSelectedLocation(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SelectedLocation = label
	return s.saveLocked()
}

// SealCredentials stores the site credentials encrypted under the
// passphrase. Requires a passphrase to be configured.
func (s *Store) SealCredentials(c Credentials) error {
	if s.passphrase == "" {
		return fmt.Errorf("no state passphrase configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	salt, err := s.saltLocked()
	if err != nil {
		return err
	}
	aead, err := crypto.NewFromPassphrase(s.passphrase, salt)
	if err != nil {
		return err
	}
	plain, err := json.Marshal(c)
	if err != nil {
		return err
	}
	sealed, err := aead.EncryptToString(string(plain))
	if err != nil {
		return err
	}
	s.state.SealedCredentials = sealed
	return s.saveLocked()
}

// Credentials returns the sealed site credentials, if present and
// decryptable with the configured passphrase.
func (s *Store) Credentials() (Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.SealedCredentials == "" {
		return Credentials{}, false, nil
	}
	if s.passphrase == "" {
		return Credentials{}, false, fmt.Errorf("state file holds sealed credentials but no passphrase is configured")
	}
	salt, err := base64.RawStdEncoding.DecodeString(s.state.CredentialSalt)
	if err != nil {
		return Credentials{}, false, fmt.Errorf("bad credential salt: %w", err)
	}
	aead, err := crypto.NewFromPassphrase(s.passphrase, salt)
	if err != nil {
		return Credentials{}, false, err
	}
	plain, err := aead.DecryptString(s.state.SealedCredentials)
	if err != nil {
		return Credentials{}, false, fmt.Errorf("unseal credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal([]byte(plain), &c); err != nil {
		return Credentials{}, false, err
	}
	return c, true, nil
}

func (s *Store) saltLocked() ([]byte, error) {
	if s.state.CredentialSalt != "" {
		return base64.RawStdEncoding.DecodeString(s.state.CredentialSalt)
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	s.state.CredentialSalt = base64.RawStdEncoding.EncodeToString(salt)
	return salt, nil
}

func (s *Store) saveLocked() error {
	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return os.Rename(tmp, s.path)
}
