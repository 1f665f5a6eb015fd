package maintenance

import (
	"context"
	"errors"
	"testing"

	logx "triggerbot/pkg/logx"
)

type fakeCompactor struct {
	calls int
	fail  error
}

func (f *fakeCompactor) Compact(ctx context.Context) error {
	f.calls++
	return f.fail
}

type fakeStats struct{}

func (fakeStats) Stats() (int, int, uint64) { return 2, 5, 9 }

func TestStartDisabledIsNoop(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, &fakeCompactor{}, fakeStats{}, logx.Nop())
	s.Start(context.Background())
	if s.c != nil {
		t.Fatal("cron started while disabled")
	}
	s.Stop(context.Background())
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, &fakeCompactor{}, fakeStats{}, logx.Nop())
	s.Start(context.Background())
	if s.c == nil {
		t.Fatal("cron not started")
	}
	if got := len(s.c.Entries()); got != 2 {
		t.Fatalf("entries = %d, want 2 (compact + stats)", got)
	}
	s.Stop(context.Background())
	if s.c != nil {
		t.Fatal("cron not cleared after Stop")
	}
}

func TestStartWithoutStorageSkipsCompact(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, nil, fakeStats{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())
	if got := len(s.c.Entries()); got != 1 {
		t.Fatalf("entries = %d, want 1 (stats only)", got)
	}
}

func TestApplyRestartsOnScheduleChange(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, &fakeCompactor{}, fakeStats{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	old := s.c
	s.Apply(Config{Enabled: true, CompactSchedule: "30 3 * * *"})
	if s.c == old || s.c == nil {
		t.Fatal("cron not restarted on schedule change")
	}

	s.Apply(Config{Enabled: false, CompactSchedule: "30 3 * * *"})
	if s.c != nil {
		t.Fatal("cron still running after disable")
	}
}

func TestRunCompact(t *testing.T) {
	t.Parallel()
	f := &fakeCompactor{}
	s := New(Config{Enabled: true}, f, fakeStats{}, logx.Nop())
	s.runCompact(context.Background())
	if f.calls != 1 {
		t.Fatalf("compact calls = %d, want 1", f.calls)
	}

	// A failing compaction is logged, not fatal.
	f.fail = errors.New("checkpoint busy")
	s.runCompact(context.Background())
	if f.calls != 2 {
		t.Fatalf("compact calls = %d, want 2", f.calls)
	}
}

func TestJobRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, nil, fakeStats{}, logx.Nop())
	s.runCtx = context.Background()
	job := s.job("boom", func(ctx context.Context) { panic("boom") })
	job() // must not propagate
}
