package config

type Config struct {
	Discord Discord `json:"discord"`
	Logging Logging `json:"logging"`

	// Storage controls write-through persistence of the trigger store.
	// If omitted, triggers live in memory only and are lost on restart.
	Storage *Storage `json:"storage,omitempty"`

	Triggers Triggers `json:"triggers"`

	// Maintenance controls scheduled housekeeping (snapshot compaction,
	// periodic stats). If omitted, maintenance is disabled.
	Maintenance *Maintenance `json:"maintenance,omitempty"`
}

type Discord struct {
	Token string `json:"token"`

	// GuildIDs scopes slash-command registration. Guild-scoped commands show
	// up immediately; an empty list registers globally (Discord may take up
	// to an hour to propagate those).
	GuildIDs []string `json:"guild_ids,omitempty"`

	// AdminUserIDs are bot administrators: always authorized to manage
	// triggers, in any guild.
	AdminUserIDs []string `json:"admin_user_ids"`

	// Status is an optional presence text ("Playing ...").
	Status string `json:"status,omitempty"`
}

type Logging struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingDiscord mirrors warnings/errors into a Discord channel.
type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// Storage selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./triggerbot_store" }
type Storage struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Triggers tunes the trigger store and the message-scan path.
type Triggers struct {
	// MaxPerGuild caps stored triggers per guild. 0 means the default (100).
	MaxPerGuild int `json:"max_per_guild,omitempty"`

	// Cooldown is a per-channel minimum gap between fired actions
	// (Go duration string). "0s" or empty disables the cooldown.
	Cooldown string `json:"cooldown,omitempty"`
}

// Maintenance schedules are 5-field cron specs (or 6-field with seconds).
type Maintenance struct {
	Enabled bool `json:"enabled"`

	// CompactSchedule folds the storage journal into the snapshot.
	// Default: "0 4 * * *".
	CompactSchedule string `json:"compact_schedule,omitempty"`

	// StatsSchedule logs guild/trigger/fire counters.
	// Default: "0 * * * *".
	StatsSchedule string `json:"stats_schedule,omitempty"`
}
