package config

import (
	"reflect"
	"strings"

	logx "triggerbot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (the bot token) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	// Discord (never log token)
	if !reflect.DeepEqual(oldCfg.Discord.AdminUserIDs, newCfg.Discord.AdminUserIDs) ||
		!reflect.DeepEqual(oldCfg.Discord.GuildIDs, newCfg.Discord.GuildIDs) ||
		strings.TrimSpace(oldCfg.Discord.Status) != strings.TrimSpace(newCfg.Discord.Status) {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Int("discord.admin_count", len(newCfg.Discord.AdminUserIDs)),
			logx.Int("discord.guild_scope_count", len(newCfg.Discord.GuildIDs)),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		oldCfg.Logging.Discord != newCfg.Logging.Discord {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.discord_enabled", newCfg.Logging.Discord.Enabled),
		)
	}

	// Triggers
	if oldCfg.Triggers != newCfg.Triggers {
		changed = append(changed, "triggers")
		attrs = append(attrs,
			logx.Int("triggers.max_per_guild", newCfg.Triggers.MaxPerGuild),
			logx.String("triggers.cooldown", strings.TrimSpace(newCfg.Triggers.Cooldown)),
		)
	}

	// Maintenance
	if !reflect.DeepEqual(oldCfg.Maintenance, newCfg.Maintenance) {
		changed = append(changed, "maintenance")
		if newCfg.Maintenance != nil {
			attrs = append(attrs, logx.Bool("maintenance.enabled", newCfg.Maintenance.Enabled))
		}
	}

	// Storage changes require a restart; flag them so the operator knows.
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage(restart required)")
	}

	return changed, attrs
}
