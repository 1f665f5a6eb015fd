package trigger

import (
	"context"
	"errors"
	"testing"

	logx "triggerbot/pkg/logx"
)

type fakePersister struct {
	puts    int
	deletes int
	roles   int
	fail    error
}

func (f *fakePersister) PutTrigger(ctx context.Context, guildID string, t Trigger) error {
	f.puts++
	return f.fail
}

func (f *fakePersister) DeleteTrigger(ctx context.Context, guildID, phrase string) error {
	f.deletes++
	return f.fail
}

func (f *fakePersister) SetAdminRole(ctx context.Context, guildID, roleID string) error {
	f.roles++
	return f.fail
}

func newTestStore(p Persister) *Store {
	return NewStore(p, logx.Nop())
}

func TestAddThenList(t *testing.T) {
	t.Parallel()
	s := newTestStore(nil)
	ctx := context.Background()

	if err := s.Add(ctx, "g1", Trigger{Phrase: "Hello There", Action: ActionReaction, Emoji: "👋"}, false); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	got := s.List("g1")
	if len(got) != 1 {
		t.Fatalf("List returned %d triggers, want 1", len(got))
	}
	if got[0].Phrase != "hello there" {
		t.Fatalf("Phrase = %q, want normalized %q", got[0].Phrase, "hello there")
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt not stamped")
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(nil)
	ctx := context.Background()

	if err := s.Add(ctx, "g1", Trigger{Phrase: "gm", Action: ActionReply, Response: "Good morning"}, false); err != nil {
		t.Fatalf("first Add error: %v", err)
	}
	// Case-insensitive duplicate.
	err := s.Add(ctx, "g1", Trigger{Phrase: "GM", Action: ActionReply, Response: "other"}, false)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second Add error = %v, want ErrAlreadyExists", err)
	}

	got := s.List("g1")
	if len(got) != 1 || got[0].Response != "Good morning" {
		t.Fatalf("store changed by rejected add: %+v", got)
	}
}

func TestAddOverwriteKeepsPosition(t *testing.T) {
	t.Parallel()
	s := newTestStore(nil)
	ctx := context.Background()

	for _, ph := range []string{"alpha", "beta", "gamma"} {
		if err := s.Add(ctx, "g1", Trigger{Phrase: ph, Action: ActionReply, Response: "r"}, false); err != nil {
			t.Fatalf("Add(%q) error: %v", ph, err)
		}
	}
	if err := s.Add(ctx, "g1", Trigger{Phrase: "beta", Action: ActionReaction, Emoji: "🔥"}, true); err != nil {
		t.Fatalf("overwrite Add error: %v", err)
	}

	got := s.List("g1")
	if len(got) != 3 {
		t.Fatalf("List returned %d triggers, want 3", len(got))
	}
	if got[1].Phrase != "beta" || got[1].Action != ActionReaction {
		t.Fatalf("overwrite moved or missed the record: %+v", got[1])
	}
}

func TestAddValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		trig Trigger
	}{
		{name: "empty phrase", trig: Trigger{Phrase: "  ", Action: ActionReply, Response: "x"}},
		{name: "reaction without emoji", trig: Trigger{Phrase: "hi", Action: ActionReaction}},
		{name: "reply without response", trig: Trigger{Phrase: "hi", Action: ActionReply}},
		{name: "unknown action", trig: Trigger{Phrase: "hi", Action: "shout", Response: "x"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestStore(nil)
			if err := s.Add(context.Background(), "g1", tt.trig, false); err == nil {
				t.Fatalf("Add(%+v) succeeded, want validation error", tt.trig)
			}
		})
	}
}

func TestLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(nil)
	s.SetLimit(2)
	ctx := context.Background()

	for _, ph := range []string{"one", "two"} {
		if err := s.Add(ctx, "g1", Trigger{Phrase: ph, Action: ActionReply, Response: "r"}, false); err != nil {
			t.Fatalf("Add(%q) error: %v", ph, err)
		}
	}
	if err := s.Add(ctx, "g1", Trigger{Phrase: "three", Action: ActionReply, Response: "r"}, false); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("Add over limit error = %v, want ErrLimitReached", err)
	}
	// Overwriting an existing phrase is not a new slot.
	if err := s.Add(ctx, "g1", Trigger{Phrase: "one", Action: ActionReply, Response: "r2"}, true); err != nil {
		t.Fatalf("overwrite at limit error: %v", err)
	}
}

func TestRemoveMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(nil)
	ctx := context.Background()

	if _, err := s.Remove(ctx, "g1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Remove error = %v, want ErrNotFound", err)
	}

	if err := s.Add(ctx, "g1", Trigger{Phrase: "keep", Action: ActionReply, Response: "r"}, false); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, err := s.Remove(ctx, "g1", "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Remove error = %v, want ErrNotFound", err)
	}
	if got := s.List("g1"); len(got) != 1 {
		t.Fatalf("store changed by failed remove: %+v", got)
	}
}

func TestRemoveCaseInsensitive(t *testing.T) {
	t.Parallel()
	s := newTestStore(nil)
	ctx := context.Background()

	if err := s.Add(ctx, "g1", Trigger{Phrase: "Memento Mori", Action: ActionReaction, Emoji: "MM:1367615846259621908"}, false); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	removed, err := s.Remove(ctx, "g1", "MEMENTO MORI")
	if err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if removed.Phrase != "memento mori" {
		t.Fatalf("removed.Phrase = %q", removed.Phrase)
	}
	if got := s.List("g1"); len(got) != 0 {
		t.Fatalf("trigger not removed: %+v", got)
	}
}

func TestMatchSubstringFirstWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(nil)
	ctx := context.Background()

	if err := s.Add(ctx, "g1", Trigger{Phrase: "hello there", Action: ActionReaction, Emoji: "👋"}, false); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := s.Add(ctx, "g1", Trigger{Phrase: "hello", Action: ActionReply, Response: "hi"}, false); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	tests := []struct {
		name    string
		content string
		want    string // matched phrase; "" = no match
	}{
		{name: "substring inside sentence", content: "oh Hello There friend", want: "hello there"},
		{name: "first by insertion order", content: "hello there", want: "hello there"},
		{name: "shorter phrase still matches alone", content: "hello world", want: "hello"},
		{name: "no registered phrase", content: "completely unrelated", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := s.Match("g1", tt.content)
			if tt.want == "" {
				if ok {
					t.Fatalf("Match(%q) = %+v, want none", tt.content, got)
				}
				return
			}
			if !ok || got.Phrase != tt.want {
				t.Fatalf("Match(%q) = (%+v, %v), want phrase %q", tt.content, got, ok, tt.want)
			}
		})
	}
}

func TestMatchGuildIsolation(t *testing.T) {
	t.Parallel()
	s := newTestStore(nil)
	ctx := context.Background()

	if err := s.Add(ctx, "g1", Trigger{Phrase: "gm", Action: ActionReply, Response: "Good morning ☀️"}, false); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, ok := s.Match("g2", "gm"); ok {
		t.Fatal("trigger leaked into another guild")
	}
}

func TestWriteThroughFailureKeepsMutation(t *testing.T) {
	t.Parallel()
	p := &fakePersister{fail: errors.New("disk full")}
	s := newTestStore(p)
	ctx := context.Background()

	err := s.Add(ctx, "g1", Trigger{Phrase: "gm", Action: ActionReply, Response: "Good morning"}, false)
	var pe *PersistError
	if !errors.As(err, &pe) {
		t.Fatalf("Add error = %v, want *PersistError", err)
	}
	// Mutation stays applied for the session.
	if got := s.List("g1"); len(got) != 1 {
		t.Fatalf("mutation rolled back on persist failure: %+v", got)
	}
	if p.puts != 1 {
		t.Fatalf("puts = %d, want 1", p.puts)
	}
}

func TestAdminRoleRoundTrip(t *testing.T) {
	t.Parallel()
	p := &fakePersister{}
	s := newTestStore(p)
	ctx := context.Background()

	if got := s.AdminRole("g1"); got != "" {
		t.Fatalf("AdminRole = %q, want empty", got)
	}
	if err := s.SetAdminRole(ctx, "g1", "role-123"); err != nil {
		t.Fatalf("SetAdminRole error: %v", err)
	}
	if got := s.AdminRole("g1"); got != "role-123" {
		t.Fatalf("AdminRole = %q, want role-123", got)
	}
	if p.roles != 1 {
		t.Fatalf("role writes = %d, want 1", p.roles)
	}
}

func TestLoadNormalizesPhrases(t *testing.T) {
	t.Parallel()
	s := newTestStore(nil)
	s.Load(map[string]GuildState{
		"g1": {
			AdminRole: "r1",
			Triggers: []Trigger{
				{Phrase: "  Hello There ", Action: ActionReaction, Emoji: "👋"},
				{Phrase: "", Action: ActionReply, Response: "dropped"},
			},
		},
	})

	got := s.List("g1")
	if len(got) != 1 || got[0].Phrase != "hello there" {
		t.Fatalf("Load result: %+v", got)
	}
	if s.AdminRole("g1") != "r1" {
		t.Fatalf("AdminRole = %q", s.AdminRole("g1"))
	}
}
