package transport

import "context"

// CommandRequest is a platform-neutral view of one invoked slash command.
// Subcommand paths are flattened ("trigger add", not nested structures).
type CommandRequest struct {
	Command   string
	GuildID   string
	ChannelID string
	UserID    string
	UserRoles []string
	// Permissions carries the member's resolved permission bits in the
	// channel the command was invoked from.
	Permissions int64
	Options     Options
}

// Options holds the command's named arguments by type.
type Options struct {
	Strings map[string]string
	Bools   map[string]bool
}

func (o Options) String(name string) string { return o.Strings[name] }
func (o Options) Bool(name string) bool     { return o.Bools[name] }

// CommandResponse is the reply shown to the invoking user.
type CommandResponse struct {
	Text      string
	Ephemeral bool
}

// MessageEvent is a platform-neutral view of one guild message.
type MessageEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string
	AuthorBot bool
	Content   string
}

// Handler consumes inbound traffic from an adapter.
type Handler interface {
	HandleCommand(ctx context.Context, req CommandRequest) CommandResponse
	HandleMessage(ctx context.Context, ev MessageEvent)
}

// Adapter is the outbound surface the bot uses to act on the platform.
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	React(ctx context.Context, channelID, messageID, emoji string) error
	Reply(ctx context.Context, channelID, messageID, text string) error
	SendText(ctx context.Context, channelID, text string) error
}
