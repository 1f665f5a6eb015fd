// Package discord adapts the Discord gateway to the bot's transport types.
package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	kit "triggerbot/internal/transport"
	logx "triggerbot/pkg/logx"
)

type Config struct {
	Token string
	// GuildIDs limits slash command registration to these guilds. Empty
	// registers globally (slower to propagate, fine for production).
	GuildIDs []string
	Status   string
}

// api is the slice of discordgo.Session the adapter calls outbound. Narrow
// so tests can swap in a fake.
type api interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UpdateCustomStatus(state string) error
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	handler kit.Handler

	session *discordgo.Session
	api     api

	selfID atomic.Value // string

	runMu   sync.Mutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
}

func New(cfg Config, h kit.Handler, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	if h == nil {
		return nil, errors.New("discord handler is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s, err := discordgo.New("Bot " + strings.TrimSpace(cfg.Token))
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	a := &Adapter{cfg: cfg, log: log, handler: h, session: s, api: s}
	a.selfID.Store("")

	s.AddHandler(a.onReady)
	s.AddHandler(a.onMessageCreate)
	s.AddHandler(a.onInteractionCreate)
	return a, nil
}

func (a *Adapter) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.runCtx, a.cancel = context.WithCancel(ctx)
	a.runMu.Unlock()

	if err := a.session.Open(); err != nil {
		a.runMu.Lock()
		a.running = false
		a.cancel()
		a.runMu.Unlock()
		return err
	}
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	cancel := a.cancel
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	err := a.session.Close()
	a.log.Info("gateway closed")
	return err
}

func (a *Adapter) ctx() context.Context {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.runCtx != nil {
		return a.runCtx
	}
	return context.Background()
}

func (a *Adapter) self() string {
	id, _ := a.selfID.Load().(string)
	return id
}

func (a *Adapter) onReady(s *discordgo.Session, r *discordgo.Ready) {
	_ = s
	a.selfID.Store(r.User.ID)
	a.log.Info("ready", logx.String("user", r.User.Username), logx.String("id", r.User.ID))

	guilds := a.cfg.GuildIDs
	if len(guilds) == 0 {
		guilds = []string{""}
	}
	defs := commandDefs()
	for _, gid := range guilds {
		if _, err := a.api.ApplicationCommandBulkOverwrite(r.User.ID, gid, defs, discordgo.WithContext(a.ctx())); err != nil {
			a.log.Error("command registration failed", logx.String("guild", gid), logx.Err(err))
			continue
		}
		a.log.Info("commands registered", logx.String("guild", gid), logx.Int("count", len(defs)))
	}

	if a.cfg.Status != "" {
		if err := a.api.UpdateCustomStatus(a.cfg.Status); err != nil {
			a.log.Warn("status update failed", logx.Err(err))
		}
	}
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	_ = s
	if m.Author == nil || m.Author.Bot || m.Author.ID == a.self() {
		return
	}
	// Guild messages only; DMs have no trigger table.
	if m.GuildID == "" || m.Content == "" {
		return
	}
	a.handler.HandleMessage(a.ctx(), kit.MessageEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
	})
}

func (a *Adapter) onInteractionCreate(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	_ = s
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}
	var resp kit.CommandResponse
	if ic.GuildID == "" {
		resp = kit.CommandResponse{Text: "Commands only work inside a server.", Ephemeral: true}
	} else {
		resp = a.handler.HandleCommand(a.ctx(), requestFromInteraction(ic))
	}
	if err := a.respond(ic.Interaction, resp); err != nil {
		a.log.Warn("interaction response failed", logx.Err(err))
	}
}

func (a *Adapter) respond(i *discordgo.Interaction, resp kit.CommandResponse) error {
	var flags discordgo.MessageFlags
	if resp.Ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	return a.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: resp.Text,
			Flags:   flags,
		},
	}, discordgo.WithContext(a.ctx()))
}

func (a *Adapter) React(ctx context.Context, channelID, messageID, emoji string) error {
	return a.api.MessageReactionAdd(channelID, messageID, normalizeEmoji(emoji), discordgo.WithContext(ctx))
}

func (a *Adapter) Reply(ctx context.Context, channelID, messageID, text string) error {
	_, err := a.api.ChannelMessageSendReply(channelID, text, &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: channelID,
	}, discordgo.WithContext(ctx))
	return err
}

// SendText posts a plain message. Also serves as the log sink target.
func (a *Adapter) SendText(ctx context.Context, channelID, text string) error {
	_, err := a.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}
