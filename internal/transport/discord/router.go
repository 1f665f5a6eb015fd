package discord

import (
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"

	kit "triggerbot/internal/transport"
)

// requestFromInteraction flattens a slash command invocation into the
// platform-neutral request. One level of subcommand is supported
// ("trigger add" style); deeper nesting is not used here.
func requestFromInteraction(ic *discordgo.InteractionCreate) kit.CommandRequest {
	data := ic.ApplicationCommandData()
	name := data.Name
	opts := data.Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		name = name + " " + opts[0].Name
		opts = opts[0].Options
	}

	req := kit.CommandRequest{
		Command:   name,
		GuildID:   ic.GuildID,
		ChannelID: ic.ChannelID,
		Options: kit.Options{
			Strings: map[string]string{},
			Bools:   map[string]bool{},
		},
	}

	if ic.Member != nil {
		if ic.Member.User != nil {
			req.UserID = ic.Member.User.ID
		}
		req.UserRoles = ic.Member.Roles
		req.Permissions = ic.Member.Permissions
	} else if ic.User != nil {
		req.UserID = ic.User.ID
	}

	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionString:
			req.Options.Strings[o.Name] = o.StringValue()
		case discordgo.ApplicationCommandOptionBoolean:
			req.Options.Bools[o.Name] = o.BoolValue()
		case discordgo.ApplicationCommandOptionRole:
			// RoleValue with a nil session returns a stub carrying only the ID.
			if r := o.RoleValue(nil, ""); r != nil {
				req.Options.Strings[o.Name] = r.ID
			}
		}
	}
	return req
}

var customEmojiRe = regexp.MustCompile(`^<a?:([A-Za-z0-9_~]+):([0-9]+)>$`)

// normalizeEmoji converts the chat form of a custom emoji (<:name:id> or
// animated <a:name:id>) into the name:id form the reactions endpoint wants.
// Plain unicode emoji pass through unchanged.
func normalizeEmoji(s string) string {
	s = strings.TrimSpace(s)
	if m := customEmojiRe.FindStringSubmatch(s); m != nil {
		return m[1] + ":" + m[2]
	}
	return s
}
