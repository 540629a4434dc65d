package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "mailwatch/pkg/logx"
)

const expiry = 14 * 24 * time.Hour

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "session.json"), expiry, logx.Nop())
}

func TestStateUninitialized(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	if got := m.State(); got != Uninitialized {
		t.Fatalf("State = %s, want uninitialized", got)
	}
}

func TestStateAfterAuthentication(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	now := time.Now()
	if err := m.MarkAuthenticated(now); err != nil {
		t.Fatalf("MarkAuthenticated: %v", err)
	}

	tests := []struct {
		name string
		age  time.Duration
		want State
	}{
		{name: "fresh", age: time.Hour, want: Valid},
		{name: "one day before expiry", age: 13 * 24 * time.Hour, want: Valid},
		{name: "one day past expiry", age: 15 * 24 * time.Hour, want: Expired},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m.now = func() time.Time { return now.Add(tt.age) }
			if got := m.State(); got != tt.want {
				t.Fatalf("State at age %v = %s, want %s", tt.age, got, tt.want)
			}
		})
	}
}

func TestInvalidateOverridesAge(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	if err := m.MarkAuthenticated(time.Now()); err != nil {
		t.Fatalf("MarkAuthenticated: %v", err)
	}
	if err := m.Invalidate("qr login requested"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if got := m.State(); got != Invalid {
		t.Fatalf("State = %s, want invalid", got)
	}
	// re-auth clears the flag
	if err := m.MarkAuthenticated(time.Now()); err != nil {
		t.Fatalf("MarkAuthenticated: %v", err)
	}
	if got := m.State(); got != Valid {
		t.Fatalf("State after re-auth = %s, want valid", got)
	}
}

func TestInvalidatePersistsNullAuthDate(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")
	m := NewManager(path, expiry, logx.Nop())
	if err := m.MarkAuthenticated(time.Now()); err != nil {
		t.Fatalf("MarkAuthenticated: %v", err)
	}
	if err := m.Invalidate("logged out remotely"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec struct {
		LastAuthDate *string `json:"last_auth_date"`
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatalf("record not valid JSON: %v", err)
	}
	if rec.LastAuthDate != nil {
		t.Fatalf("last_auth_date = %q, want null", *rec.LastAuthDate)
	}
	if !strings.Contains(string(b), `"last_auth_date"`) {
		t.Fatalf("record %s does not carry the last_auth_date key", b)
	}
	if _, ok := m.LastAuth(); ok {
		t.Fatal("LastAuth still reports a timestamp after invalidation")
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")
	at := time.Now().Add(-time.Hour)

	m1 := NewManager(path, expiry, logx.Nop())
	if err := m1.MarkAuthenticated(at); err != nil {
		t.Fatalf("MarkAuthenticated: %v", err)
	}

	m2 := NewManager(path, expiry, logx.Nop())
	if got := m2.State(); got != Valid {
		t.Fatalf("State = %s, want valid", got)
	}
	got, ok := m2.LastAuth()
	if !ok {
		t.Fatal("LastAuth not recorded")
	}
	if got.Unix() != at.Unix() {
		t.Fatalf("LastAuth = %v, want %v", got, at)
	}
}

func TestCorruptRecordIsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path, expiry, logx.Nop())
	if got := m.State(); got != Invalid {
		t.Fatalf("State = %s, want invalid for corrupt record", got)
	}
}
