// Package maintenance runs the periodic background jobs: storage compaction
// and a stats heartbeat line.
package maintenance

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "triggerbot/pkg/logx"
)

type Config struct {
	Enabled bool
	// Cron specs, 5-field or 6-field with seconds.
	CompactSchedule string
	StatsSchedule   string
}

const (
	defaultCompactSchedule = "0 4 * * *"
	defaultStatsSchedule   = "0 * * * *"
)

// Compactor is the slice of the storage layer this service drives.
type Compactor interface {
	Compact(ctx context.Context) error
}

// StatsSource reports the counters logged on the stats schedule.
type StatsSource interface {
	Stats() (guilds, triggers int, fired uint64)
}

type Service struct {
	log     logx.Logger
	store   Compactor // nil when storage is disabled
	stats   StatsSource
	parser  cron.Parser

	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

func New(cfg Config, store Compactor, stats StatsSource, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:   log,
		store: store,
		stats: stats,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cfg:    cfg,
	}
}

// Apply swaps the configuration. A running service restarts its cron entries
// when the schedules change.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.cfg != cfg
	s.cfg = cfg
	if !changed || s.c == nil {
		return
	}
	s.stopLocked()
	if cfg.Enabled {
		s.startLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.startLocked()
}

func (s *Service) Stop(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.runCtx = nil
	}
}

func (s *Service) startLocked() {
	c := cron.New(cron.WithParser(s.parser))

	compactSpec := strings.TrimSpace(s.cfg.CompactSchedule)
	if compactSpec == "" {
		compactSpec = defaultCompactSchedule
	}
	statsSpec := strings.TrimSpace(s.cfg.StatsSchedule)
	if statsSpec == "" {
		statsSpec = defaultStatsSchedule
	}

	if s.store != nil {
		if _, err := c.AddFunc(compactSpec, s.job("compact", s.runCompact)); err != nil {
			s.log.Error("bad compact schedule", logx.String("spec", compactSpec), logx.Err(err))
		}
	}
	if s.stats != nil {
		if _, err := c.AddFunc(statsSpec, s.job("stats", s.runStats)); err != nil {
			s.log.Error("bad stats schedule", logx.String("spec", statsSpec), logx.Err(err))
		}
	}

	c.Start()
	s.c = c
	s.log.Info("maintenance started",
		logx.String("compact", compactSpec),
		logx.String("stats", statsSpec),
		logx.Bool("storage", s.store != nil))
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info("maintenance stopped")
}

func (s *Service) job(name string, fn func(ctx context.Context)) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in maintenance job",
					logx.String("job", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		fn(ctx)
	}
}

func (s *Service) runCompact(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	start := time.Now()
	if err := s.store.Compact(cctx); err != nil {
		s.log.Warn("storage compact failed", logx.Err(err))
		return
	}
	s.log.Info("storage compacted", logx.Duration("took", time.Since(start)))
}

func (s *Service) runStats(ctx context.Context) {
	_ = ctx
	guilds, triggers, fired := s.stats.Stats()
	s.log.Info("stats",
		logx.Int("guilds", guilds),
		logx.Int("triggers", triggers),
		logx.Uint64("fired", fired))
}
