package discord

import "github.com/bwmarrin/discordgo"

// Command and option names. The router flattens subcommands, so "trigger add"
// and "addtrigger" dispatch to the same handler.
const (
	CmdAddTrigger    = "addtrigger"
	CmdRemoveTrigger = "removetrigger"
	CmdListTriggers  = "listtriggers"
	CmdSetAdminRole  = "setadminrole"
	CmdTriggerGroup  = "trigger"

	OptPhrase    = "phrase"
	OptAction    = "action"
	OptEmoji     = "emoji"
	OptResponse  = "response"
	OptOverwrite = "overwrite"
	OptRole      = "role"
)

func addTriggerOptions() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        OptPhrase,
			Description: "Phrase to watch for (case-insensitive)",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        OptAction,
			Description: "What to do when the phrase appears",
			Required:    true,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "React with an emoji", Value: "reaction"},
				{Name: "Reply with a message", Value: "reply"},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        OptEmoji,
			Description: "Emoji to react with (required for reaction)",
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        OptResponse,
			Description: "Text to reply with (required for reply)",
		},
		{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        OptOverwrite,
			Description: "Replace the trigger if the phrase already exists",
		},
	}
}

func removeTriggerOptions() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        OptPhrase,
			Description: "Phrase of the trigger to remove",
			Required:    true,
		},
	}
}

// commandDefs is what gets bulk-overwritten at the gateway on Ready.
func commandDefs() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        CmdAddTrigger,
			Description: "Register a trigger phrase",
			Options:     addTriggerOptions(),
		},
		{
			Name:        CmdRemoveTrigger,
			Description: "Remove a trigger phrase",
			Options:     removeTriggerOptions(),
		},
		{
			Name:        CmdListTriggers,
			Description: "List this server's trigger phrases",
		},
		{
			Name:        CmdSetAdminRole,
			Description: "Choose which role may manage triggers",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        OptRole,
					Description: "Role allowed to manage triggers",
					Required:    true,
				},
			},
		},
		{
			Name:        CmdTriggerGroup,
			Description: "Manage trigger phrases",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Register a trigger phrase",
					Options:     addTriggerOptions(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove a trigger phrase",
					Options:     removeTriggerOptions(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List this server's trigger phrases",
				},
			},
		},
	}
}
