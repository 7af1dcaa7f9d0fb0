// ABOUTME: Permission-gated moderation dispatcher for member actions
// ABOUTME: Validates preconditions, executes platform calls, and emits moderation audit entries

package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vanidev/guildgate/internal/discord"
	"github.com/vanidev/guildgate/internal/events"
	"github.com/vanidev/guildgate/internal/store"
)

// ErrHierarchy is returned when the platform's role ordering forbids the
// action against the target member.
var ErrHierarchy = errors.New("insufficient role hierarchy")

// ErrUnknownAction is returned for an unrecognized moderation action.
var ErrUnknownAction = errors.New("unknown moderation action")

// ErrMissingMessage is returned when a direct-message action has no body.
var ErrMissingMessage = errors.New("no direct message body provided")

// Action identifies a moderation operation.
type Action string

const (
	ActionKick       Action = "kick"
	ActionBan        Action = "ban"
	ActionTimeout    Action = "timeout"
	ActionDM         Action = "dm"
	ActionAddRole    Action = "addrole"
	ActionRemoveRole Action = "removerole"
)

// DefaultTimeoutSeconds is applied when a timeout duration is missing or
// malformed. Malformed durations are never rejected, only defaulted.
const DefaultTimeoutSeconds = 60

// banPurgeDays is how many days of recent messages a ban deletes.
const banPurgeDays = 1

// Options carries the per-action parameters. Duration is a raw string in
// seconds because it arrives from form input.
type Options struct {
	Reason   string `json:"reason,omitempty"`
	Duration string `json:"duration,omitempty"`
	Message  string `json:"message,omitempty"`
	RoleID   string `json:"roleId,omitempty"`
}

// TimeoutSeconds coerces the duration to a positive integer, falling back
// to DefaultTimeoutSeconds.
func (o Options) TimeoutSeconds() int {
	n, err := strconv.Atoi(o.Duration)
	if err != nil || n <= 0 {
		return DefaultTimeoutSeconds
	}
	return n
}

// Client is the platform surface the dispatcher drives. *discordgo.Session
// satisfies it.
type Client interface {
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Dispatcher executes privileged member actions and records them in the
// moderation audit log.
type Dispatcher struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
}

// NewDispatcher creates a moderation dispatcher.
func NewDispatcher(s *store.Store, bus *events.Bus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:  s,
		bus:    bus,
		logger: logger.With("component", "moderation"),
	}
}

// Dispatch runs one moderation action against a member. The caller resolves
// the target snapshot first; eligibility flags on it gate kick, ban, and
// timeout before any platform call. Returns a human-readable confirmation.
// Platform failures are audited as errors and returned; precondition
// failures are returned without an audit entry.
func (d *Dispatcher) Dispatch(ctx context.Context, client Client, guildID string, target discord.Member, action Action, opts Options) (string, error) {
	reason := opts.Reason
	if reason == "" {
		reason = "Actioned via dashboard"
	}

	var confirmation string
	var err error
	switch action {
	case ActionKick:
		if !target.Kickable {
			return "", fmt.Errorf("%w: cannot kick %s", ErrHierarchy, target.Tag)
		}
		err = client.GuildMemberDeleteWithReason(guildID, target.ID, reason, discordgo.WithContext(ctx))
		confirmation = fmt.Sprintf("Kicked %s", target.Tag)

	case ActionBan:
		if !target.Bannable {
			return "", fmt.Errorf("%w: cannot ban %s", ErrHierarchy, target.Tag)
		}
		err = client.GuildBanCreateWithReason(guildID, target.ID, reason, banPurgeDays, discordgo.WithContext(ctx))
		confirmation = fmt.Sprintf("Banned %s", target.Tag)

	case ActionTimeout:
		if !target.Moderatable {
			return "", fmt.Errorf("%w: cannot time out %s", ErrHierarchy, target.Tag)
		}
		seconds := opts.TimeoutSeconds()
		until := time.Now().Add(time.Duration(seconds) * time.Second)
		err = client.GuildMemberTimeout(guildID, target.ID, &until, discordgo.WithContext(ctx))
		confirmation = fmt.Sprintf("Timed out %s for %ds", target.Tag, seconds)

	case ActionDM:
		if opts.Message == "" {
			return "", ErrMissingMessage
		}
		err = d.sendDirectMessage(ctx, client, target.ID, opts.Message)
		confirmation = fmt.Sprintf("Sent DM to %s", target.Tag)

	case ActionAddRole:
		if opts.RoleID == "" {
			return "", fmt.Errorf("%w: no role given", ErrUnknownAction)
		}
		err = client.GuildMemberRoleAdd(guildID, target.ID, opts.RoleID, discordgo.WithContext(ctx))
		confirmation = fmt.Sprintf("Added role to %s", target.Tag)

	case ActionRemoveRole:
		if opts.RoleID == "" {
			return "", fmt.Errorf("%w: no role given", ErrUnknownAction)
		}
		err = client.GuildMemberRoleRemove(guildID, target.ID, opts.RoleID, discordgo.WithContext(ctx))
		confirmation = fmt.Sprintf("Removed role from %s", target.Tag)

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	if err != nil {
		d.audit(ctx, fmt.Sprintf("%s failed for %s: %v", action, target.Tag, err), store.SeverityError)
		return "", fmt.Errorf("%s %s: %w", action, target.Tag, err)
	}

	d.audit(ctx, confirmation, store.SeveritySuccess)
	return confirmation, nil
}

func (d *Dispatcher) sendDirectMessage(ctx context.Context, client Client, userID, message string) error {
	ch, err := client.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opening DM channel: %w", err)
	}
	if _, err := client.ChannelMessageSend(ch.ID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending DM: %w", err)
	}
	return nil
}

func (d *Dispatcher) audit(ctx context.Context, message, severity string) {
	if _, err := d.store.AppendAudit(ctx, store.AuditEntry{
		Category: store.AuditModeration,
		Message:  message,
		Severity: severity,
	}); err != nil {
		d.logger.Error("appending audit entry", "error", err)
		return
	}
	d.bus.Publish(events.Notification{Category: events.CategoryLogs})
}
