package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validJSON = `{
  "discord": {
    "token": "secret-token",
    "guild_ids": ["g1"],
    "admin_user_ids": ["u1", "u2"],
    "status": "watching chat"
  },
  "logging": {
    "level": "debug",
    "console": true,
    "file": {"enabled": false, "path": ""},
    "discord": {"enabled": true, "channel_id": "c9", "min_level": "warn", "rate_per_sec": 1}
  },
  "storage": {"driver": "file", "path": "./store"},
  "triggers": {"max_per_guild": 50, "cooldown": "5s"},
  "maintenance": {"enabled": true, "compact_schedule": "0 4 * * *"}
}`

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", validJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Discord.Token != "secret-token" || len(cfg.Discord.AdminUserIDs) != 2 {
		t.Fatalf("discord section: %+v", cfg.Discord)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage section: %+v", cfg.Storage)
	}
	if cfg.Triggers.MaxPerGuild != 50 || cfg.Triggers.Cooldown != "5s" {
		t.Fatalf("triggers section: %+v", cfg.Triggers)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", `
discord:
  token: secret-token
  admin_user_ids: [u1]
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
  discord: {enabled: false, channel_id: "", min_level: "", rate_per_sec: 0}
triggers:
  cooldown: 2s
`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Discord.Token != "secret-token" || cfg.Triggers.Cooldown != "2s" {
		t.Fatalf("yaml config: %+v", cfg)
	}
	if cfg.Storage != nil || cfg.Maintenance != nil {
		t.Fatalf("optional sections should stay nil: %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json",
		`{"discord": {"token": "x", "admin_user_ids": []}, "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}, "discord": {"enabled": false, "channel_id": "", "min_level": "", "rate_per_sec": 0}}, "triggers": {}, "bogus": 1}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json",
		`{"discord": {"token": "x", "admin_user_ids": []}, "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}, "discord": {"enabled": false, "channel_id": "", "min_level": "", "rate_per_sec": 0}}, "triggers": {}} {"again": true}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestSubscribePublishAndUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", validJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	ch := m.Subscribe(1)
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("published config mismatch")
		}
	default:
		t.Fatal("nothing published")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(cfg)
}

func TestPublishDropsOldestWhenSlow(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b) // buffer full: a is dropped, b delivered

	got := <-ch
	if got != b {
		t.Fatal("latest config was not delivered")
	}
}

func TestHashConfigStable(t *testing.T) {
	t.Parallel()
	c1 := &Config{Discord: Discord{Token: "t"}}
	c2 := &Config{Discord: Discord{Token: "t"}}
	if hashConfig(c1) != hashConfig(c2) {
		t.Fatal("equal configs hash differently")
	}
	c2.Triggers.MaxPerGuild = 5
	if hashConfig(c1) == hashConfig(c2) {
		t.Fatal("different configs hash equal")
	}
	if hashConfig(nil) != 0 {
		t.Fatal("nil config must hash to 0")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Discord: Discord{Token: "t", AdminUserIDs: []string{"a"}}}
	newCfg := &Config{
		Discord:  Discord{Token: "t", AdminUserIDs: []string{"a", "b"}},
		Triggers: Triggers{Cooldown: "3s"},
		Storage:  &Storage{Driver: "file", Path: "./x"},
	}

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"discord": true, "triggers": true, "storage(restart required)": true}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}

	if changed, _ := SummarizeChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("no-op change reported: %v", changed)
	}
}
