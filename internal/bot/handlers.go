package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"triggerbot/internal/eventbus"
	kit "triggerbot/internal/transport"
	"triggerbot/internal/transport/discord"
	"triggerbot/internal/trigger"
	logx "triggerbot/pkg/logx"
)

// Manage Guild ("Manage Server" in the UI) is the built-in fallback when no
// manager role is configured.
const permManageGuild int64 = 1 << 5

// Outbound is the slice of the adapter the handlers act through.
type Outbound interface {
	React(ctx context.Context, channelID, messageID, emoji string) error
	Reply(ctx context.Context, channelID, messageID, text string) error
}

// Settings are the hot-reloadable knobs the handlers consult per request.
type Settings struct {
	AdminUserIDs []string
	Cooldown     time.Duration
}

// Handlers implement the transport.Handler surface: slash commands and the
// message-scan path.
type Handlers struct {
	store *trigger.Store
	bus   eventbus.Bus
	log   logx.Logger

	mu         sync.RWMutex
	out        Outbound
	adminUsers map[string]struct{}
	cooldown   time.Duration

	cdMu      sync.Mutex
	cooldowns map[string]*rate.Limiter // channelID -> gate
}

func NewHandlers(store *trigger.Store, bus eventbus.Bus, s Settings, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &Handlers{
		store:     store,
		bus:       bus,
		log:       log,
		cooldowns: map[string]*rate.Limiter{},
	}
	h.ApplySettings(s)
	return h
}

// SetOutbound wires the adapter after construction. The adapter needs the
// handlers at New time, so this runs second.
func (h *Handlers) SetOutbound(out Outbound) {
	h.mu.Lock()
	h.out = out
	h.mu.Unlock()
}

// ApplySettings swaps the reloadable knobs. Changing the cooldown resets all
// per-channel gates.
func (h *Handlers) ApplySettings(s Settings) {
	admins := make(map[string]struct{}, len(s.AdminUserIDs))
	for _, id := range s.AdminUserIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = struct{}{}
		}
	}

	h.mu.Lock()
	reset := h.cooldown != s.Cooldown
	h.adminUsers = admins
	h.cooldown = s.Cooldown
	h.mu.Unlock()

	if reset {
		h.cdMu.Lock()
		h.cooldowns = map[string]*rate.Limiter{}
		h.cdMu.Unlock()
	}
}

// ---- slash commands ----

func (h *Handlers) HandleCommand(ctx context.Context, req kit.CommandRequest) kit.CommandResponse {
	switch req.Command {
	case discord.CmdAddTrigger, discord.CmdTriggerGroup + " add":
		return h.cmdAdd(ctx, req)
	case discord.CmdRemoveTrigger, discord.CmdTriggerGroup + " remove":
		return h.cmdRemove(ctx, req)
	case discord.CmdListTriggers, discord.CmdTriggerGroup + " list":
		return h.cmdList(req)
	case discord.CmdSetAdminRole:
		return h.cmdSetAdminRole(ctx, req)
	default:
		return ephemeral("Unknown command.")
	}
}

// authorized reports whether the invoking member may manage triggers:
// a bot administrator, a holder of the guild's manager role, or anyone
// with Manage Server when no manager role is configured.
func (h *Handlers) authorized(req kit.CommandRequest) bool {
	h.mu.RLock()
	_, isAdmin := h.adminUsers[req.UserID]
	h.mu.RUnlock()
	if isAdmin {
		return true
	}

	if roleID := h.store.AdminRole(req.GuildID); roleID != "" {
		for _, r := range req.UserRoles {
			if r == roleID {
				return true
			}
		}
		return false
	}
	return req.Permissions&permManageGuild != 0
}

func (h *Handlers) cmdAdd(ctx context.Context, req kit.CommandRequest) kit.CommandResponse {
	if !h.authorized(req) {
		return ephemeral("You are not allowed to manage triggers here.")
	}

	t := trigger.Trigger{
		Phrase:    req.Options.String(discord.OptPhrase),
		Action:    trigger.Action(req.Options.String(discord.OptAction)),
		Emoji:     req.Options.String(discord.OptEmoji),
		Response:  req.Options.String(discord.OptResponse),
		CreatedBy: req.UserID,
	}
	overwrite := req.Options.Bool(discord.OptOverwrite)

	err := h.store.Add(ctx, req.GuildID, t, overwrite)
	phrase := trigger.Normalize(t.Phrase)
	switch {
	case errors.Is(err, trigger.ErrAlreadyExists):
		return ephemeral(fmt.Sprintf("A trigger for %q already exists. Pass overwrite:True to replace it.", phrase))
	case errors.Is(err, trigger.ErrLimitReached):
		return ephemeral("This server is at its trigger limit. Remove one first.")
	case err != nil && !isPersistErr(err):
		return ephemeral(err.Error())
	}

	h.publish(eventbus.TypeTriggerAdded, req, phrase, string(t.Action))
	msg := fmt.Sprintf("Trigger %q registered.", phrase)
	if isPersistErr(err) {
		msg += " (Warning: saving failed; it may not survive a restart.)"
	}
	return ephemeral(msg)
}

func (h *Handlers) cmdRemove(ctx context.Context, req kit.CommandRequest) kit.CommandResponse {
	if !h.authorized(req) {
		return ephemeral("You are not allowed to manage triggers here.")
	}

	phrase := req.Options.String(discord.OptPhrase)
	removed, err := h.store.Remove(ctx, req.GuildID, phrase)
	switch {
	case errors.Is(err, trigger.ErrNotFound):
		return ephemeral(fmt.Sprintf("No trigger found for %q.", trigger.Normalize(phrase)))
	case err != nil && !isPersistErr(err):
		return ephemeral(err.Error())
	}

	h.publish(eventbus.TypeTriggerRemoved, req, removed.Phrase, string(removed.Action))
	msg := fmt.Sprintf("Trigger %q removed.", removed.Phrase)
	if isPersistErr(err) {
		msg += " (Warning: saving failed; it may come back after a restart.)"
	}
	return ephemeral(msg)
}

func (h *Handlers) cmdList(req kit.CommandRequest) kit.CommandResponse {
	ts := h.store.List(req.GuildID)
	if len(ts) == 0 {
		return ephemeral("No triggers registered in this server.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d trigger(s):\n", len(ts))
	for _, t := range ts {
		var line string
		if t.Action == trigger.ActionReaction {
			line = fmt.Sprintf("• `%s` → react %s\n", t.Phrase, t.Emoji)
		} else {
			line = fmt.Sprintf("• `%s` → reply %q\n", t.Phrase, clip(t.Response, 60))
		}
		// Stay under Discord's 2000-char message cap.
		if b.Len()+len(line) > 1900 {
			b.WriteString("…\n")
			break
		}
		b.WriteString(line)
	}
	return ephemeral(b.String())
}

func (h *Handlers) cmdSetAdminRole(ctx context.Context, req kit.CommandRequest) kit.CommandResponse {
	if !h.authorized(req) {
		return ephemeral("You are not allowed to manage triggers here.")
	}

	roleID := req.Options.String(discord.OptRole)
	if roleID == "" {
		return ephemeral("Pick a role.")
	}
	err := h.store.SetAdminRole(ctx, req.GuildID, roleID)
	if err != nil && !isPersistErr(err) {
		return ephemeral(err.Error())
	}

	h.publish(eventbus.TypeAdminRoleSet, req, "", roleID)
	msg := fmt.Sprintf("Trigger manager role set to <@&%s>.", roleID)
	if isPersistErr(err) {
		msg += " (Warning: saving failed.)"
	}
	return ephemeral(msg)
}

// ---- message scan path ----

func (h *Handlers) HandleMessage(ctx context.Context, ev kit.MessageEvent) {
	t, ok := h.store.Match(ev.GuildID, ev.Content)
	if !ok {
		return
	}
	if !h.allowFire(ev.ChannelID) {
		h.log.Debug("trigger suppressed by cooldown",
			logx.String("guild", ev.GuildID),
			logx.String("channel", ev.ChannelID),
			logx.String("phrase", t.Phrase))
		return
	}

	h.mu.RLock()
	out := h.out
	h.mu.RUnlock()
	if out == nil {
		return
	}

	var err error
	if t.Action == trigger.ActionReaction {
		err = out.React(ctx, ev.ChannelID, ev.MessageID, t.Emoji)
	} else {
		err = out.Reply(ctx, ev.ChannelID, ev.MessageID, t.Response)
	}
	if err != nil {
		h.log.Warn("trigger action failed",
			logx.String("guild", ev.GuildID),
			logx.String("phrase", t.Phrase),
			logx.String("action", string(t.Action)),
			logx.Err(err))
		return
	}

	h.store.MarkFired()
	if h.bus != nil {
		h.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerFired, Data: AuditData{
			GuildID:   ev.GuildID,
			ChannelID: ev.ChannelID,
			ActorID:   ev.AuthorID,
			Phrase:    t.Phrase,
			Detail:    string(t.Action),
		}})
	}
}

// allowFire enforces the per-channel cooldown. Zero cooldown always allows.
func (h *Handlers) allowFire(channelID string) bool {
	h.mu.RLock()
	cd := h.cooldown
	h.mu.RUnlock()
	if cd <= 0 {
		return true
	}

	h.cdMu.Lock()
	lim := h.cooldowns[channelID]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(cd), 1)
		h.cooldowns[channelID] = lim
	}
	h.cdMu.Unlock()
	return lim.Allow()
}

// ---- helpers ----

// AuditData is the payload on every bus event; the audit recorder turns it
// into a storage row.
type AuditData struct {
	GuildID   string
	ChannelID string
	ActorID   string
	Phrase    string
	Detail    string
}

func (h *Handlers) publish(typ string, req kit.CommandRequest, phrase, detail string) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(eventbus.Event{Type: typ, Data: AuditData{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		ActorID:   req.UserID,
		Phrase:    phrase,
		Detail:    detail,
	}})
}

func ephemeral(text string) kit.CommandResponse {
	return kit.CommandResponse{Text: text, Ephemeral: true}
}

func isPersistErr(err error) bool {
	var pe *trigger.PersistError
	return errors.As(err, &pe)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
