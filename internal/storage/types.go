package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journals)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty, the file driver is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one notification dispatch outcome.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At        time.Time
	MessageID string
	Sender    string
	Subject   string
	Rule      string
	Channel   string
	OK        bool
	Error     string
	TookMS    int64
}
