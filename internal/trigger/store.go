package trigger

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	logx "triggerbot/pkg/logx"
)

// DefaultLimit caps triggers per guild unless the config overrides it.
const DefaultLimit = 100

// Persister is the write-through persistence port. Implemented by the
// storage package; nil disables persistence entirely.
type Persister interface {
	PutTrigger(ctx context.Context, guildID string, t Trigger) error
	DeleteTrigger(ctx context.Context, guildID, phrase string) error
	SetAdminRole(ctx context.Context, guildID, roleID string) error
}

// GuildState is the loadable/persistable view of one guild.
type GuildState struct {
	AdminRole string    `json:"admin_role,omitempty"`
	Triggers  []Trigger `json:"triggers"`
}

type guildEntry struct {
	adminRole string
	triggers  []Trigger // insertion order
}

// Store holds all guild trigger tables behind one RWMutex. Mutations are
// infrequent (slash commands); the hot path is Match on every message.
type Store struct {
	mu     sync.RWMutex
	guilds map[string]*guildEntry
	limit  int

	persist Persister
	log     logx.Logger

	fired atomic.Uint64
}

func NewStore(persist Persister, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		guilds:  map[string]*guildEntry{},
		limit:   DefaultLimit,
		persist: persist,
		log:     log,
	}
}

// Load replaces all in-memory state. Called once at startup with whatever
// the storage layer recovered.
func (s *Store) Load(state map[string]GuildState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds = make(map[string]*guildEntry, len(state))
	for gid, gs := range state {
		e := &guildEntry{adminRole: gs.AdminRole}
		for _, t := range gs.Triggers {
			t.Phrase = Normalize(t.Phrase)
			if t.Phrase == "" {
				continue
			}
			e.triggers = append(e.triggers, t)
		}
		s.guilds[gid] = e
	}
}

// SetLimit applies a new per-guild cap. Existing oversized guilds keep their
// triggers; the cap only gates new adds.
func (s *Store) SetLimit(n int) {
	if n <= 0 {
		n = DefaultLimit
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
}

func (s *Store) entryLocked(guildID string) *guildEntry {
	e := s.guilds[guildID]
	if e == nil {
		e = &guildEntry{}
		s.guilds[guildID] = e
	}
	return e
}

// Add registers a trigger. Duplicate phrases (case-insensitive) are rejected
// unless overwrite is set, in which case the new record replaces the old one
// in place, keeping its position in match order.
func (s *Store) Add(ctx context.Context, guildID string, t Trigger, overwrite bool) error {
	t.Phrase = Normalize(t.Phrase)
	if err := t.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	e := s.entryLocked(guildID)
	idx := -1
	for i := range e.triggers {
		if e.triggers[i].Phrase == t.Phrase {
			idx = i
			break
		}
	}
	switch {
	case idx >= 0 && !overwrite:
		s.mu.Unlock()
		return ErrAlreadyExists
	case idx >= 0:
		e.triggers[idx] = t
	default:
		if len(e.triggers) >= s.limit {
			s.mu.Unlock()
			return ErrLimitReached
		}
		e.triggers = append(e.triggers, t)
	}
	s.mu.Unlock()

	return s.writeThrough(ctx, "put_trigger", func(p Persister) error {
		return p.PutTrigger(ctx, guildID, t)
	})
}

// Remove deletes a trigger by phrase and returns the removed record.
func (s *Store) Remove(ctx context.Context, guildID, phrase string) (Trigger, error) {
	phrase = Normalize(phrase)

	s.mu.Lock()
	e := s.guilds[guildID]
	idx := -1
	if e != nil {
		for i := range e.triggers {
			if e.triggers[i].Phrase == phrase {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return Trigger{}, ErrNotFound
	}
	removed := e.triggers[idx]
	e.triggers = append(e.triggers[:idx], e.triggers[idx+1:]...)
	s.mu.Unlock()

	err := s.writeThrough(ctx, "delete_trigger", func(p Persister) error {
		return p.DeleteTrigger(ctx, guildID, phrase)
	})
	return removed, err
}

// List returns the guild's triggers in insertion order. Reads are public;
// no authorization is involved here.
func (s *Store) List(guildID string) []Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.guilds[guildID]
	if e == nil || len(e.triggers) == 0 {
		return nil
	}
	out := make([]Trigger, len(e.triggers))
	copy(out, e.triggers)
	return out
}

// Match scans content for any stored phrase as a case-insensitive substring.
// The first match in insertion order wins; at most one trigger fires per
// message.
func (s *Store) Match(guildID, content string) (Trigger, bool) {
	lowered := strings.ToLower(content)

	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.guilds[guildID]
	if e == nil {
		return Trigger{}, false
	}
	for _, t := range e.triggers {
		if strings.Contains(lowered, t.Phrase) {
			return t, true
		}
	}
	return Trigger{}, false
}

// AdminRole returns the guild's configured manager role ID ("" if unset).
func (s *Store) AdminRole(guildID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.guilds[guildID]; e != nil {
		return e.adminRole
	}
	return ""
}

// SetAdminRole records which role may manage triggers in the guild.
func (s *Store) SetAdminRole(ctx context.Context, guildID, roleID string) error {
	roleID = strings.TrimSpace(roleID)

	s.mu.Lock()
	s.entryLocked(guildID).adminRole = roleID
	s.mu.Unlock()

	return s.writeThrough(ctx, "set_admin_role", func(p Persister) error {
		return p.SetAdminRole(ctx, guildID, roleID)
	})
}

// MarkFired bumps the fired-action counter (stats only).
func (s *Store) MarkFired() { s.fired.Add(1) }

// Stats reports guild/trigger/fired counters for the maintenance log line.
func (s *Store) Stats() (guilds, triggers int, fired uint64) {
	s.mu.RLock()
	for _, e := range s.guilds {
		if len(e.triggers) > 0 || e.adminRole != "" {
			guilds++
		}
		triggers += len(e.triggers)
	}
	s.mu.RUnlock()
	return guilds, triggers, s.fired.Load()
}

func (s *Store) writeThrough(ctx context.Context, op string, fn func(Persister) error) error {
	if s.persist == nil {
		return nil
	}
	if err := fn(s.persist); err != nil {
		// The in-memory store stays authoritative for this session; the
		// mutation may be lost on restart.
		s.log.Error("write-through failed", logx.String("op", op), logx.Err(err))
		return &PersistError{Op: op, Err: err}
	}
	return nil
}
