package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"triggerbot/internal/trigger"
	logx "triggerbot/pkg/logx"
)

func openTestFileStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "triggers.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return st
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st := openTestFileStore(t, dir)
	tr := trigger.Trigger{
		Phrase:    "hello there",
		Action:    trigger.ActionReaction,
		Emoji:     "👋",
		CreatedBy: "u1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := st.PutTrigger(ctx, "g1", tr); err != nil {
		t.Fatalf("PutTrigger error: %v", err)
	}
	if err := st.SetAdminRole(ctx, "g1", "role-9"); err != nil {
		t.Fatalf("SetAdminRole error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	st = openTestFileStore(t, dir)
	defer st.Close()
	got, err := st.LoadGuilds(ctx)
	if err != nil {
		t.Fatalf("LoadGuilds error: %v", err)
	}
	gs, ok := got["g1"]
	if !ok {
		t.Fatalf("guild g1 missing: %+v", got)
	}
	if gs.AdminRole != "role-9" {
		t.Fatalf("AdminRole = %q, want role-9", gs.AdminRole)
	}
	if len(gs.Triggers) != 1 || gs.Triggers[0].Phrase != "hello there" || gs.Triggers[0].Emoji != "👋" {
		t.Fatalf("Triggers = %+v", gs.Triggers)
	}
}

func TestFileJournalReplayAfterDelete(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st := openTestFileStore(t, dir)
	for _, ph := range []string{"one", "two", "three"} {
		tr := trigger.Trigger{Phrase: ph, Action: trigger.ActionReply, Response: "r"}
		if err := st.PutTrigger(ctx, "g1", tr); err != nil {
			t.Fatalf("PutTrigger(%q) error: %v", ph, err)
		}
	}
	if err := st.DeleteTrigger(ctx, "g1", "two"); err != nil {
		t.Fatalf("DeleteTrigger error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	st = openTestFileStore(t, dir)
	defer st.Close()
	got, err := st.LoadGuilds(ctx)
	if err != nil {
		t.Fatalf("LoadGuilds error: %v", err)
	}
	trs := got["g1"].Triggers
	if len(trs) != 2 || trs[0].Phrase != "one" || trs[1].Phrase != "three" {
		t.Fatalf("Triggers = %+v, want [one three]", trs)
	}
}

func TestFileCompactTruncatesJournal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st := openTestFileStore(t, dir)
	defer st.Close()
	tr := trigger.Trigger{Phrase: "gm", Action: trigger.ActionReply, Response: "Good morning"}
	if err := st.PutTrigger(ctx, "g1", tr); err != nil {
		t.Fatalf("PutTrigger error: %v", err)
	}
	if err := st.Compact(ctx); err != nil {
		t.Fatalf("Compact error: %v", err)
	}

	journal := filepath.Join(dir, "triggers.guilds.journal.jsonl")
	fi, err := os.Stat(journal)
	if err != nil {
		t.Fatalf("Stat journal: %v", err)
	}
	if fi.Size() != 0 {
		t.Fatalf("journal size = %d after compact, want 0", fi.Size())
	}

	snap := filepath.Join(dir, "triggers.guilds.snapshot.json")
	if _, err := os.Stat(snap); err != nil {
		t.Fatalf("snapshot missing after compact: %v", err)
	}

	got, err := st.LoadGuilds(ctx)
	if err != nil {
		t.Fatalf("LoadGuilds error: %v", err)
	}
	if len(got["g1"].Triggers) != 1 {
		t.Fatalf("state lost after compact: %+v", got)
	}
}

func TestFileAppendAudit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st := openTestFileStore(t, dir)
	defer st.Close()
	e := AuditEntry{
		At:      time.Now().UTC(),
		GuildID: "g1",
		ActorID: "u1",
		Action:  "trigger.added",
		Phrase:  "gm",
	}
	if err := st.AppendAudit(ctx, e); err != nil {
		t.Fatalf("AppendAudit error: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "triggers.audit.jsonl"))
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("audit file empty")
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q) error: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) = %v, want nil store", driver, st)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("Open with unknown driver succeeded")
	}
}
