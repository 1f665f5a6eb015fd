package storage

import (
	"context"
	"errors"
	"strings"

	"triggerbot/internal/trigger"
	logx "triggerbot/pkg/logx"
)

// Store is the persistence API used by the bot. It is a superset of
// trigger.Persister so the trigger store can use it directly as its
// write-through port.
type Store interface {
	// LoadGuilds recovers all persisted guild state. Called once at startup.
	LoadGuilds(ctx context.Context) (map[string]trigger.GuildState, error)

	PutTrigger(ctx context.Context, guildID string, t trigger.Trigger) error
	DeleteTrigger(ctx context.Context, guildID, phrase string) error
	SetAdminRole(ctx context.Context, guildID, roleID string) error

	AppendAudit(ctx context.Context, e AuditEntry) error

	// Compact folds incremental state into the compact representation
	// (snapshot for the file driver, WAL checkpoint for sqlite).
	Compact(ctx context.Context) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
