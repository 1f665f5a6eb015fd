// Package bot wires configuration, storage, the trigger store, the Discord
// adapter and maintenance into one runnable unit.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"triggerbot/internal/config"
	"triggerbot/internal/eventbus"
	"triggerbot/internal/maintenance"
	"triggerbot/internal/storage"
	kit "triggerbot/internal/transport"
	"triggerbot/internal/transport/discord"
	"triggerbot/internal/trigger"
	logx "triggerbot/pkg/logx"
)

type App struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	st       storage.Store // nil when storage is disabled
	triggers *trigger.Store
	bus      eventbus.Bus
	handlers *Handlers
	adapter  kit.Adapter
	maint    *maintenance.Service

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastCfg *config.Config
}

func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	mgr.SetValidator(validateConfig)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, root := logx.New(logxConfig(cfg.Logging), nil)
	log := root.With(logx.String("comp", "app"))
	mgr.SetLogger(root.With(logx.String("comp", "config")))

	// Storage trouble is never fatal: the in-memory store stays authoritative
	// and the bot runs without persistence.
	st, err := storage.Open(storageConfig(cfg.Storage), root.With(logx.String("comp", "storage")))
	if err != nil {
		log.Error("storage unavailable, continuing in memory only", logx.Err(err))
		st = nil
	}

	var persist trigger.Persister
	if st != nil {
		persist = st
	}
	triggers := trigger.NewStore(persist, root.With(logx.String("comp", "triggers")))
	triggers.SetLimit(cfg.Triggers.MaxPerGuild)

	if st != nil {
		loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		guilds, lerr := st.LoadGuilds(loadCtx)
		cancel()
		if lerr != nil {
			log.Error("loading persisted triggers failed, starting empty", logx.Err(lerr))
		} else {
			triggers.Load(guilds)
			g, t, _ := triggers.Stats()
			log.Info("triggers loaded", logx.Int("guilds", g), logx.Int("triggers", t))
		}
	}

	bus := eventbus.New()
	handlers := NewHandlers(triggers, bus, settingsFrom(cfg), root.With(logx.String("comp", "handlers")))

	adapter, err := discord.New(discord.Config{
		Token:    cfg.Discord.Token,
		GuildIDs: cfg.Discord.GuildIDs,
		Status:   cfg.Discord.Status,
	}, handlers, root.With(logx.String("comp", "discord")))
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}
	handlers.SetOutbound(adapter)

	var compactor maintenance.Compactor
	if st != nil {
		compactor = st
	}
	maint := maintenance.New(maintConfig(cfg), compactor, triggers, root.With(logx.String("comp", "maintenance")))

	return &App{
		mgr:      mgr,
		logSvc:   logSvc,
		log:      log,
		st:       st,
		triggers: triggers,
		bus:      bus,
		handlers: handlers,
		adapter:  adapter,
		maint:    maint,
		lastCfg:  cfg,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.runMu.Unlock()

	if err := a.adapter.Start(runCtx); err != nil {
		a.runMu.Lock()
		a.running = false
		a.runMu.Unlock()
		cancel()
		return fmt.Errorf("discord connect: %w", err)
	}

	// The log sink needs a live session, so it is wired after connect.
	a.logSvc.SetSender(a.adapter)

	if a.st != nil {
		ch, unsub := a.bus.Subscribe(64)
		a.wg.Add(1)
		go a.runAuditRecorder(runCtx, ch, unsub)
	}

	a.maint.Start(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.mgr.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()

	sub := a.mgr.Subscribe(2)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.mgr.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	a.log.Info("bot started")
	return nil
}

func (a *App) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	a.cancel = nil
	a.runMu.Unlock()

	a.maint.Stop(ctx)
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop error", logx.Err(err))
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown timed out waiting for workers")
	}

	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.log.Warn("storage close error", logx.Err(err))
		}
	}
	a.log.Info("bot stopped")
	_ = a.logSvc.Close()
}

func (a *App) applyReload(cfg *config.Config) {
	changed, attrs := config.SummarizeChange(a.lastCfg, cfg)
	if len(changed) == 0 {
		return
	}

	a.logSvc.Apply(logxConfig(cfg.Logging))
	a.triggers.SetLimit(cfg.Triggers.MaxPerGuild)
	a.handlers.ApplySettings(settingsFrom(cfg))
	a.maint.Apply(maintConfig(cfg))
	a.lastCfg = cfg

	fields := append([]logx.Field{logx.String("sections", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) runAuditRecorder(ctx context.Context, ch <-chan eventbus.Event, unsub func()) {
	defer a.wg.Done()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			d, ok := e.Data.(AuditData)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.st.AppendAudit(wctx, storage.AuditEntry{
				At:        e.Time,
				GuildID:   d.GuildID,
				ChannelID: d.ChannelID,
				ActorID:   d.ActorID,
				Action:    e.Type,
				Phrase:    d.Phrase,
				Detail:    d.Detail,
			})
			cancel()
			if err != nil {
				a.log.Debug("audit append failed", logx.Err(err))
			}
		}
	}
}

// ---- config plumbing ----

func validateConfig(ctx context.Context, cfg *config.Config) error {
	_ = ctx
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required")
	}
	if cfg.Storage != nil {
		d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
		switch d {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
		if (d == "file" || d == "sqlite" || d == "sqlite3") && strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for driver %q", d)
		}
		if _, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
			return err
		}
	}
	if _, err := config.ParseDurationOrDefault("triggers.cooldown", cfg.Triggers.Cooldown, 0); err != nil {
		return err
	}
	if cfg.Triggers.MaxPerGuild < 0 {
		return fmt.Errorf("triggers.max_per_guild must not be negative")
	}
	return nil
}

func logxConfig(l config.Logging) logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Discord: logx.DiscordConfig{
			Enabled:    l.Discord.Enabled,
			ChannelID:  l.Discord.ChannelID,
			MinLevel:   l.Discord.MinLevel,
			RatePerSec: l.Discord.RatePerSec,
		},
	}
}

func storageConfig(s *config.Storage) storage.Config {
	if s == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, 0)
	return storage.Config{Driver: s.Driver, Path: s.Path, BusyTimeout: busy}
}

func maintConfig(cfg *config.Config) maintenance.Config {
	if cfg.Maintenance == nil {
		return maintenance.Config{}
	}
	return maintenance.Config{
		Enabled:         cfg.Maintenance.Enabled,
		CompactSchedule: cfg.Maintenance.CompactSchedule,
		StatsSchedule:   cfg.Maintenance.StatsSchedule,
	}
}

func settingsFrom(cfg *config.Config) Settings {
	cd, _ := config.ParseDurationOrDefault("triggers.cooldown", cfg.Triggers.Cooldown, 0)
	return Settings{
		AdminUserIDs: cfg.Discord.AdminUserIDs,
		Cooldown:     cd,
	}
}
