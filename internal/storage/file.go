package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"triggerbot/internal/trigger"
	logx "triggerbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.guilds.snapshot.json (atomic full snapshot, tmp + rename)
//   - <prefix>.guilds.journal.jsonl (append-only mutation journal)
//   - <prefix>.audit.jsonl          (append-only JSON Lines)
//
// The journal is replayed over the snapshot at open and periodically
// compacted back into it.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	snapshotPath string
	journalFile  *os.File
	guilds       map[string]trigger.GuildState

	journalWrites int
}

type journalRecord struct {
	Op      string           `json:"op"`
	GuildID string           `json:"guild_id"`
	Trigger *trigger.Trigger `json:"trigger,omitempty"`
	Phrase  string           `json:"phrase,omitempty"`
	Role    string           `json:"role,omitempty"`
}

const (
	opPutTrigger    = "put_trigger"
	opDeleteTrigger = "delete_trigger"
	opSetAdminRole  = "set_admin_role"
)

// compactEvery bounds journal growth between scheduled compactions.
const compactEvery = 256

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".guilds.snapshot.json"
	journalPath := prefix + ".guilds.journal.jsonl"
	auditPath := prefix + ".audit.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load guild state from snapshot + journal.
	guilds := map[string]trigger.GuildState{}
	_ = loadGuildSnapshot(snapPath, guilds)
	_ = replayGuildJournal(journalPath, guilds)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	return &fileStore{
		log:          log,
		auditFile:    af,
		snapshotPath: snapPath,
		journalFile:  jf,
		guilds:       guilds,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.journalFile != nil {
		err2 = s.journalFile.Close()
		s.journalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) LoadGuilds(ctx context.Context) (map[string]trigger.GuildState, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]trigger.GuildState, len(s.guilds))
	for gid, gs := range s.guilds {
		cp := trigger.GuildState{AdminRole: gs.AdminRole}
		cp.Triggers = append([]trigger.Trigger(nil), gs.Triggers...)
		out[gid] = cp
	}
	return out, nil
}

func (s *fileStore) PutTrigger(ctx context.Context, guildID string, t trigger.Trigger) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	applyPut(s.guilds, guildID, t)
	return s.appendJournalLocked(journalRecord{Op: opPutTrigger, GuildID: guildID, Trigger: &t})
}

func (s *fileStore) DeleteTrigger(ctx context.Context, guildID, phrase string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	applyDelete(s.guilds, guildID, phrase)
	return s.appendJournalLocked(journalRecord{Op: opDeleteTrigger, GuildID: guildID, Phrase: phrase})
}

func (s *fileStore) SetAdminRole(ctx context.Context, guildID, roleID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	gs := s.guilds[guildID]
	gs.AdminRole = roleID
	s.guilds[guildID] = gs
	return s.appendJournalLocked(journalRecord{Op: opSetAdminRole, GuildID: guildID, Role: roleID})
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Compact(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked()
}

func (s *fileStore) appendJournalLocked(r journalRecord) error {
	if s.journalFile == nil {
		return errors.New("journal closed")
	}
	if err := json.NewEncoder(s.journalFile).Encode(r); err != nil {
		return err
	}
	s.journalWrites++
	if s.journalWrites%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("snapshot compact failed", logx.Err(err))
		}
	}
	return nil
}

// compactLocked writes the snapshot atomically (tmp + rename) and truncates
// the journal.
func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.guilds); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if s.journalFile == nil {
		return nil
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, io.SeekEnd)
	return err
}

func applyPut(guilds map[string]trigger.GuildState, guildID string, t trigger.Trigger) {
	gs := guilds[guildID]
	replaced := false
	for i := range gs.Triggers {
		if gs.Triggers[i].Phrase == t.Phrase {
			gs.Triggers[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		gs.Triggers = append(gs.Triggers, t)
	}
	guilds[guildID] = gs
}

func applyDelete(guilds map[string]trigger.GuildState, guildID, phrase string) {
	gs, ok := guilds[guildID]
	if !ok {
		return
	}
	for i := range gs.Triggers {
		if gs.Triggers[i].Phrase == phrase {
			gs.Triggers = append(gs.Triggers[:i], gs.Triggers[i+1:]...)
			break
		}
	}
	guilds[guildID] = gs
}

func loadGuildSnapshot(path string, out map[string]trigger.GuildState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]trigger.GuildState
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayGuildJournal(path string, out map[string]trigger.GuildState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case opPutTrigger:
			if r.Trigger != nil {
				applyPut(out, r.GuildID, *r.Trigger)
			}
		case opDeleteTrigger:
			applyDelete(out, r.GuildID, r.Phrase)
		case opSetAdminRole:
			gs := out[r.GuildID]
			gs.AdminRole = r.Role
			out[r.GuildID] = gs
		}
	}
	return sc.Err()
}
