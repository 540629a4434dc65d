// Package session tracks WhatsApp Web authentication state in a small
// JSON record on disk. The browser layer reports auth events; everyone
// else only asks whether the session is still usable.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	logx "mailwatch/pkg/logx"
)

type State int

const (
	// Uninitialized means no session record exists yet.
	Uninitialized State = iota
	// Valid means the last authentication is within the expiry window.
	Valid
	// Expired means the last authentication is older than the expiry window.
	Expired
	// Invalid means the session was explicitly invalidated after an auth
	// failure and must be re-established regardless of age.
	Invalid
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// record is the on-disk shape. LastAuthDate is RFC 3339; invalidation is
// persisted as an explicit null so the file always carries the key.
type record struct {
	LastAuthDate *string `json:"last_auth_date"`
}

// Manager reads and writes the session record. All methods are safe for
// concurrent use.
type Manager struct {
	path   string
	expiry time.Duration
	log    logx.Logger

	mu  sync.Mutex
	now func() time.Time
}

func NewManager(path string, expiry time.Duration, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{path: path, expiry: expiry, log: log, now: time.Now}
}

// State derives the current state from the record file. A missing file is
// Uninitialized; an unreadable or malformed file is treated as Invalid so
// the caller re-authenticates rather than trusting garbage.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Uninitialized
		}
		m.log.Warn("session record unreadable", logx.Err(err), logx.String("path", m.path))
		return Invalid
	}
	if rec.LastAuthDate == nil {
		return Invalid
	}
	at, err := time.Parse(time.RFC3339, *rec.LastAuthDate)
	if err != nil {
		return Invalid
	}
	if m.now().Sub(at) > m.expiry {
		return Expired
	}
	return Valid
}

// LastAuth returns the recorded authentication time, if any.
func (m *Manager) LastAuth() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.read()
	if err != nil || rec.LastAuthDate == nil {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, *rec.LastAuthDate)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// MarkAuthenticated records a successful authentication at t, replacing any
// prior invalidation.
func (m *Manager) MarkAuthenticated(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := t.UTC().Format(time.RFC3339)
	return m.write(record{LastAuthDate: &at})
}

// Invalidate marks the session unusable by nulling the recorded auth date.
func (m *Manager) Invalidate(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Warn("session invalidated", logx.String("reason", reason))
	return m.write(record{})
}

func (m *Manager) read() (record, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return record{}, err
	}
	return rec, nil
}

// write replaces the record atomically so a crash mid-write never leaves a
// truncated file behind.
func (m *Manager) write(rec record) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
