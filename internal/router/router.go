// ABOUTME: Interaction router dispatching slash commands to built-in handlers
// ABOUTME: or stored custom commands with role gating and opportunistic replies

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vanidev/guildgate/internal/commands"
	"github.com/vanidev/guildgate/internal/discord"
	"github.com/vanidev/guildgate/internal/gateway"
	"github.com/vanidev/guildgate/internal/moderation"
	"github.com/vanidev/guildgate/internal/permissions"
	"github.com/vanidev/guildgate/internal/store"
)

const (
	embedColor         = 0x6366f1
	embedColorHealthy  = 0x10b981
	embedColorDegraded = 0xf59e0b

	deniedReply       = "You do not have permission to use this command."
	missingRoleReply  = "You do not have the required role to use this command."
	unknownReply      = "Unknown command."
	noGuildReply      = "This command can only be used in a server."
	memberGoneReply   = "That member could not be found."
	cannotActionReply = "I cannot moderate this member."
)

// platform is the slice of the Discord session the router drives.
// *discordgo.Session satisfies it.
type platform interface {
	moderation.Client
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	HeartbeatLatency() time.Duration
}

// Router maps inbound interactions onto built-in handlers and stored
// custom commands.
type Router struct {
	store      *store.Store
	dispatcher *moderation.Dispatcher
	state      func() gateway.State
	logger     *slog.Logger
	started    time.Time
}

// New creates an interaction router. state reports the gateway connection
// state for the status command.
func New(s *store.Store, dispatcher *moderation.Dispatcher, state func() gateway.State, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:      s,
		dispatcher: dispatcher,
		state:      state,
		logger:     logger.With("component", "router"),
		started:    time.Now(),
	}
}

// Handle is the gateway-facing entrypoint for interaction events.
func (r *Router) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	var guild *discordgo.Guild
	var bot *discordgo.Member
	if s.State != nil && i.GuildID != "" {
		guild, _ = s.State.Guild(i.GuildID)
		if s.State.User != nil {
			bot, _ = s.State.Member(i.GuildID, s.State.User.ID)
		}
	}

	r.route(context.Background(), s, guild, bot, i, guildCount(s))
}

func guildCount(s *discordgo.Session) int {
	if s.State == nil {
		return 0
	}
	return len(s.State.Guilds)
}

func (r *Router) route(ctx context.Context, p platform, guild *discordgo.Guild, bot *discordgo.Member, i *discordgo.InteractionCreate, guilds int) {
	name := i.ApplicationCommandData().Name

	if commands.IsBuiltin(name) {
		r.routeBuiltin(ctx, p, guild, bot, i, guilds)
		return
	}

	cmd, ok := ResolveCustom(r.store.Commands(), name, i.GuildID)
	if !ok {
		r.replyEphemeral(p, i, unknownReply)
		return
	}

	if cmd.RequiredRoleID != "" {
		if i.Member == nil || !slices.Contains(i.Member.Roles, cmd.RequiredRoleID) {
			r.replyEphemeral(p, i, missingRoleReply)
			return
		}
	}

	r.reply(p, i, buildResponse(cmd.Body))
}

// ResolveCustom finds the custom command for an invocation: an exact
// (name, guild) match wins, then the global definition.
func ResolveCustom(cmds []store.Command, name, guildID string) (store.Command, bool) {
	var global store.Command
	var haveGlobal bool
	for _, c := range cmds {
		if c.Name != name {
			continue
		}
		if c.GuildID == guildID && guildID != "" {
			return c, true
		}
		if c.Global() {
			global, haveGlobal = c, true
		}
	}
	return global, haveGlobal
}

// buildResponse interprets a command body opportunistically: a body that
// parses as structured response data is sent as-is, anything else as
// plain text.
func buildResponse(body string) *discordgo.InteractionResponseData {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		var data discordgo.InteractionResponseData
		if err := json.Unmarshal([]byte(trimmed), &data); err == nil {
			if data.Content != "" || len(data.Embeds) > 0 || len(data.Components) > 0 {
				return &data
			}
		}
	}
	return &discordgo.InteractionResponseData{Content: body}
}

func (r *Router) routeBuiltin(ctx context.Context, p platform, guild *discordgo.Guild, bot *discordgo.Member, i *discordgo.InteractionCreate, guilds int) {
	switch i.ApplicationCommandData().Name {
	case "ping":
		r.reply(p, i, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{r.pingEmbed(p)}})
	case "status":
		r.reply(p, i, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{r.statusEmbed(p, guilds)}})
	case "help":
		r.reply(p, i, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{r.helpEmbed(i.GuildID)}})
	case "kick":
		r.moderate(ctx, p, guild, bot, i, permissions.LevelMod, moderation.ActionKick)
	case "ban":
		r.moderate(ctx, p, guild, bot, i, permissions.LevelAdmin, moderation.ActionBan)
	case "timeout":
		r.moderate(ctx, p, guild, bot, i, permissions.LevelMod, moderation.ActionTimeout)
	case "addrole":
		r.moderate(ctx, p, guild, bot, i, permissions.LevelAdmin, moderation.ActionAddRole)
	case "removerole":
		r.moderate(ctx, p, guild, bot, i, permissions.LevelAdmin, moderation.ActionRemoveRole)
	}
}

func (r *Router) moderate(ctx context.Context, p platform, guild *discordgo.Guild, bot *discordgo.Member, i *discordgo.InteractionCreate, level permissions.Level, action moderation.Action) {
	if i.GuildID == "" || i.Member == nil {
		r.replyEphemeral(p, i, noGuildReply)
		return
	}

	actor := actorFromInteraction(i, guild)
	if !permissions.Evaluate(actor, r.store.GuildConfig(i.GuildID), level) {
		r.replyEphemeral(p, i, deniedReply)
		return
	}

	opts := i.ApplicationCommandData().Options
	userID := optionString(opts, "user")
	if userID == "" {
		r.replyEphemeral(p, i, memberGoneReply)
		return
	}

	target, err := p.GuildMember(i.GuildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		r.replyEphemeral(p, i, memberGoneReply)
		return
	}
	snapshot := discord.MemberSnapshot(guild, bot, target)

	modOpts := moderation.Options{
		Reason: optionString(opts, "reason"),
		RoleID: optionString(opts, "role"),
	}
	if minutes := optionInt(opts, "duration"); minutes > 0 {
		modOpts.Duration = strconv.FormatInt(minutes*60, 10)
	}

	confirmation, err := r.dispatcher.Dispatch(ctx, p, i.GuildID, snapshot, action, modOpts)
	if err != nil {
		r.logger.Warn("moderation command failed", "action", string(action), "error", err)
		if errors.Is(err, moderation.ErrHierarchy) {
			r.replyEphemeral(p, i, cannotActionReply)
			return
		}
		r.replyEphemeral(p, i, fmt.Sprintf("Error: %v", err))
		return
	}
	r.reply(p, i, &discordgo.InteractionResponseData{Content: confirmation})
}

// actorFromInteraction extracts the permission-relevant facts about the
// invoking member.
func actorFromInteraction(i *discordgo.InteractionCreate, guild *discordgo.Guild) permissions.Actor {
	m := i.Member
	actor := permissions.Actor{RoleIDs: m.Roles}
	if m.User != nil && guild != nil {
		actor.GuildOwner = m.User.ID == guild.OwnerID
	}
	actor.Administrator = m.Permissions&discordgo.PermissionAdministrator != 0
	actor.ModerateMembers = m.Permissions&discordgo.PermissionModerateMembers != 0
	return actor
}

func (r *Router) pingEmbed(p platform) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Pong!",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Gateway Latency", Value: fmt.Sprintf("`%dms`", p.HeartbeatLatency().Milliseconds()), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (r *Router) statusEmbed(p platform, guilds int) *discordgo.MessageEmbed {
	state := r.state()
	color := embedColorDegraded
	if state == gateway.StateReady {
		color = embedColorHealthy
	}
	return &discordgo.MessageEmbed{
		Title: "System Status",
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "WebSocket", Value: fmt.Sprintf("`%s`", state), Inline: true},
			{Name: "Ping", Value: fmt.Sprintf("`%dms`", p.HeartbeatLatency().Milliseconds()), Inline: true},
			{Name: "Servers", Value: fmt.Sprintf("`%d`", guilds), Inline: true},
			{Name: "Runtime", Value: fmt.Sprintf("`%s`", runtime.Version()), Inline: true},
			{Name: "Uptime", Value: fmt.Sprintf("<t:%d:R>", r.started.Unix()), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (r *Router) helpEmbed(guildID string) *discordgo.MessageEmbed {
	var builtinNames, globalNames, guildNames []string
	for _, b := range commands.Builtins() {
		builtinNames = append(builtinNames, "`/"+b.Name+"`")
	}
	for _, c := range r.store.Commands() {
		switch {
		case c.Global():
			globalNames = append(globalNames, "`/"+c.Name+"`")
		case c.GuildID == guildID:
			guildNames = append(guildNames, "`/"+c.Name+"`")
		}
	}
	return &discordgo.MessageEmbed{
		Title:       "Command Overview",
		Description: "All commands available on this server.",
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Built-in", Value: joinOrNone(builtinNames)},
			{Name: "Global", Value: joinOrNone(globalNames)},
			{Name: "Server", Value: joinOrNone(guildNames)},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "_none_"
	}
	return strings.Join(names, ", ")
}

func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			if s, ok := o.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

func optionInt(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	for _, o := range opts {
		if o.Name == name {
			if f, ok := o.Value.(float64); ok {
				return int64(f)
			}
		}
	}
	return 0
}

// reply sends a response; a send failure falls back to a private error
// reply so a malformed body never crashes the router.
func (r *Router) reply(p platform, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	err := p.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err == nil {
		return
	}
	r.logger.Warn("interaction reply failed", "error", err)
	fallback := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("Error: %v", err),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
	if err := p.InteractionRespond(i.Interaction, fallback); err != nil {
		r.logger.Error("interaction error fallback failed", "error", err)
	}
}

func (r *Router) replyEphemeral(p platform, i *discordgo.InteractionCreate, content string) {
	err := p.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		r.logger.Warn("interaction reply failed", "error", err)
	}
}
