//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"triggerbot/internal/trigger"
	logx "triggerbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadGuilds(ctx context.Context) (map[string]trigger.GuildState, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	out := map[string]trigger.GuildState{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, phrase, action, emoji, response, created_by, created_at
		 FROM triggers ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var gid string
		var t trigger.Trigger
		var emoji, response, createdBy sql.NullString
		var createdAt string
		if err := rows.Scan(&gid, &t.Phrase, &t.Action, &emoji, &response, &createdBy, &createdAt); err != nil {
			return nil, err
		}
		t.Emoji = emoji.String
		t.Response = response.String
		t.CreatedBy = createdBy.String
		if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			t.CreatedAt = ts
		}
		gs := out[gid]
		gs.Triggers = append(gs.Triggers, t)
		out[gid] = gs
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roleRows, err := s.db.QueryContext(ctx, `SELECT guild_id, admin_role FROM guild_settings`)
	if err != nil {
		return nil, err
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var gid, role string
		if err := roleRows.Scan(&gid, &role); err != nil {
			return nil, err
		}
		gs := out[gid]
		gs.AdminRole = role
		out[gid] = gs
	}
	return out, roleRows.Err()
}

func (s *sqliteStore) PutTrigger(ctx context.Context, guildID string, t trigger.Trigger) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	// Upsert keeps the original rowid, so insertion order survives overwrite.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO triggers(guild_id, phrase, action, emoji, response, created_by, created_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(guild_id, phrase) DO UPDATE SET
		   action=excluded.action, emoji=excluded.emoji, response=excluded.response,
		   created_by=excluded.created_by, created_at=excluded.created_at`,
		guildID, t.Phrase, string(t.Action), nullStr(t.Emoji), nullStr(t.Response),
		nullStr(t.CreatedBy), t.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) DeleteTrigger(ctx context.Context, guildID, phrase string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM triggers WHERE guild_id = ? AND phrase = ?`, guildID, phrase)
	return err
}

func (s *sqliteStore) SetAdminRole(ctx context.Context, guildID, roleID string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_settings(guild_id, admin_role) VALUES(?,?)
		 ON CONFLICT(guild_id) DO UPDATE SET admin_role=excluded.admin_role`,
		guildID, roleID)
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, guild_id, channel_id, actor_id, action, phrase, detail)
		 VALUES(?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.GuildID, nullStr(e.ChannelID),
		nullStr(e.ActorID), e.Action, nullStr(e.Phrase), nullStr(e.Detail),
	)
	return err
}

func (s *sqliteStore) Compact(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
