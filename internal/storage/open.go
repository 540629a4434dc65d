package storage

import (
	"context"
	"errors"
	"strings"

	logx "mailwatch/pkg/logx"
)

// Store is the persistence API used by the monitor and dispatcher.
// Processed ids never expire; a marked message is never re-dispatched,
// even across restarts.
type Store interface {
	Seen(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
