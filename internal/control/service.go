// ABOUTME: Control service exposing the dashboard operation surface
// ABOUTME: Wires the gateway, command engine, dispatcher, and store together

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/vanidev/guildgate/internal/commands"
	"github.com/vanidev/guildgate/internal/config"
	"github.com/vanidev/guildgate/internal/discord"
	"github.com/vanidev/guildgate/internal/events"
	"github.com/vanidev/guildgate/internal/gateway"
	"github.com/vanidev/guildgate/internal/moderation"
	"github.com/vanidev/guildgate/internal/router"
	"github.com/vanidev/guildgate/internal/store"
)

// ErrValidation is returned for malformed operation input.
var ErrValidation = errors.New("validation failed")

// memberPageSize is the platform's maximum member page.
const memberPageSize = 1000

// ConnectionState is the externally reported gateway state. A non-auto
// override replaces the live state entirely.
type ConnectionState struct {
	State    string         `json:"state"`
	Override store.Override `json:"override"`
}

// Service is the operation surface consumed by the dashboard layer. All
// methods return either a result or a structured error; none panic.
type Service struct {
	cfg        *config.Config
	store      *store.Store
	bus        *events.Bus
	manager    *gateway.Manager
	engine     *commands.Engine
	dispatcher *moderation.Dispatcher
	router     *router.Router
	logger     *slog.Logger

	// session is a seam over manager.Session for tests.
	session func() (*discordgo.Session, error)
}

// New wires up a control service and its gateway manager. The gateway is
// not started; call Start (or rely on auto-start in the caller).
func New(cfg *config.Config, st *store.Store, bus *events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	manager := gateway.NewManager(gateway.Config{
		Token:           cfg.Discord.Token,
		RestartCooldown: cfg.Gateway.RestartCooldown,
		Presence:        cfg.StatusData(),
	}, st, bus, logger)

	svc := &Service{
		cfg:        cfg,
		store:      st,
		bus:        bus,
		manager:    manager,
		engine:     commands.NewEngine(st, bus, logger),
		dispatcher: moderation.NewDispatcher(st, bus, logger),
		logger:     logger.With("component", "control"),
	}
	svc.session = manager.Session
	svc.router = router.New(st, svc.dispatcher, manager.State, logger)

	manager.OnInteraction(svc.router.Handle)
	manager.OnConnect(func(ctx context.Context, s *discordgo.Session) {
		if err := svc.engine.Sync(ctx, applicationID(s), s); err != nil {
			svc.logger.Error("post-connect command sync failed", "error", err)
		}
	})

	return svc
}

// applicationID resolves the application id used for command registration.
// For bot accounts it matches the bot user id.
func applicationID(s *discordgo.Session) string {
	if s.State != nil && s.State.User != nil {
		return s.State.User.ID
	}
	return ""
}

// ConnectionState reports the gateway state with the operator override
// applied.
func (svc *Service) ConnectionState() ConnectionState {
	override := svc.store.Override()
	state := string(svc.manager.State())
	if override.Mode != store.OverrideAuto && override.Mode != "" {
		state = strings.ToUpper(override.Mode)
	}
	return ConnectionState{State: state, Override: override}
}

// Start brings the gateway up.
func (svc *Service) Start(ctx context.Context) error {
	return svc.manager.Start(ctx)
}

// Stop tears the gateway down.
func (svc *Service) Stop(ctx context.Context) error {
	return svc.manager.Stop(ctx)
}

// Restart cycles the gateway connection with the configured cooldown.
func (svc *Service) Restart(ctx context.Context) error {
	return svc.manager.Restart(ctx)
}

// Override returns the current status override.
func (svc *Service) Override() store.Override {
	return svc.store.Override()
}

// SetOverride sets the operator status override.
func (svc *Service) SetOverride(ctx context.Context, mode, message string) error {
	switch mode {
	case store.OverrideAuto, store.OverrideIssues, store.OverrideMaintenance:
	default:
		return fmt.Errorf("%w: unknown override mode %q", ErrValidation, mode)
	}
	if err := svc.store.SetOverride(ctx, store.Override{Mode: mode, Message: message}); err != nil {
		return err
	}
	svc.bus.Publish(events.Notification{Category: events.CategoryStatus})
	return nil
}

// ListCommands returns every command definition, built-ins flagged.
func (svc *Service) ListCommands() []commands.Info {
	return svc.engine.List()
}

// UpsertCommand stores a custom command and synchronizes the registry
// before confirming. Returns the normalized command name.
func (svc *Service) UpsertCommand(ctx context.Context, cmd store.Command) (string, error) {
	appID, reg := svc.registrar()
	return svc.engine.Upsert(ctx, cmd, appID, reg)
}

// DeleteCommand removes a custom command and synchronizes the registry.
func (svc *Service) DeleteCommand(ctx context.Context, name, guildID string) error {
	appID, reg := svc.registrar()
	return svc.engine.Delete(ctx, name, guildID, appID, reg)
}

// registrar returns the live session as a command registrar, or nil when
// offline so the engine defers synchronization.
func (svc *Service) registrar() (string, commands.Registrar) {
	s, err := svc.session()
	if err != nil {
		return "", nil
	}
	return applicationID(s), s
}

// GuildConfig returns the permission configuration for a guild. Missing
// guilds yield an empty config.
func (svc *Service) GuildConfig(guildID string) store.GuildConfig {
	return normalizeConfig(svc.store.GuildConfig(guildID))
}

// SetGuildConfig replaces the permission configuration for a guild.
func (svc *Service) SetGuildConfig(ctx context.Context, guildID string, cfg store.GuildConfig) error {
	if guildID == "" {
		return fmt.Errorf("%w: guild id is required", ErrValidation)
	}
	if err := svc.store.SetGuildConfig(ctx, guildID, normalizeConfig(cfg)); err != nil {
		return err
	}
	svc.bus.Publish(events.Notification{Category: events.CategoryGuildConfig, GuildID: guildID})
	return nil
}

func normalizeConfig(cfg store.GuildConfig) store.GuildConfig {
	if cfg.Roles.Owner == nil {
		cfg.Roles.Owner = []string{}
	}
	if cfg.Roles.Admin == nil {
		cfg.Roles.Admin = []string{}
	}
	if cfg.Roles.Mod == nil {
		cfg.Roles.Mod = []string{}
	}
	return cfg
}

// Guilds returns snapshots of every guild the bot is in. An offline
// gateway yields an empty list, not an error.
func (svc *Service) Guilds() []discord.Guild {
	s, err := svc.session()
	if err != nil {
		return []discord.Guild{}
	}
	out := make([]discord.Guild, 0, len(s.State.Guilds))
	for _, g := range s.State.Guilds {
		out = append(out, discord.GuildSnapshot(g))
	}
	return out
}

// ListMembers returns member snapshots for a guild, with moderation
// eligibility computed against the bot's own role position.
func (svc *Service) ListMembers(ctx context.Context, guildID string) ([]discord.Member, error) {
	s, err := svc.session()
	if err != nil {
		return nil, err
	}

	guild, bot := svc.guildContext(s, guildID)

	var out []discord.Member
	after := ""
	for {
		page, err := s.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing members: %w", err)
		}
		for _, m := range page {
			out = append(out, discord.MemberSnapshot(guild, bot, m))
		}
		if len(page) < memberPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// guildContext resolves the cached guild and the bot's own member record.
func (svc *Service) guildContext(s *discordgo.Session, guildID string) (*discordgo.Guild, *discordgo.Member) {
	var guild *discordgo.Guild
	var bot *discordgo.Member
	if s.State != nil {
		guild, _ = s.State.Guild(guildID)
		if s.State.User != nil {
			bot, _ = s.State.Member(guildID, s.State.User.ID)
			if bot == nil {
				bot, _ = s.GuildMember(guildID, s.State.User.ID)
			}
		}
	}
	return guild, bot
}

// Moderate runs a moderation action against a guild member and returns a
// confirmation message.
func (svc *Service) Moderate(ctx context.Context, guildID, userID string, action moderation.Action, opts moderation.Options) (string, error) {
	s, err := svc.session()
	if err != nil {
		return "", err
	}

	target, err := s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("resolving member: %w", err)
	}

	guild, bot := svc.guildContext(s, guildID)
	snapshot := discord.MemberSnapshot(guild, bot, target)
	return svc.dispatcher.Dispatch(ctx, s, guildID, snapshot, action, opts)
}

// LeaveGuild removes the bot from a guild.
func (svc *Service) LeaveGuild(ctx context.Context, guildID string) (string, error) {
	s, err := svc.session()
	if err != nil {
		return "", err
	}

	name := guildID
	if g, err := s.State.Guild(guildID); err == nil {
		name = g.Name
	}

	if err := s.GuildLeave(guildID, discordgo.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("leaving guild: %w", err)
	}

	svc.audit(ctx, store.AuditSystem, fmt.Sprintf("Left guild %s", name), store.SeveritySuccess)
	svc.bus.Publish(events.Notification{Category: events.CategoryGuilds})
	return fmt.Sprintf("Left guild %s", name), nil
}

// UpdatePresence replaces the bot's presence.
func (svc *Service) UpdatePresence(ctx context.Context, activity, activityType, status string) error {
	s, err := svc.session()
	if err != nil {
		return err
	}

	parsedType, err := config.ActivityType(activityType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	switch status {
	case "online", "idle", "dnd", "invisible":
	default:
		return fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	data := discordgo.UpdateStatusData{Status: status}
	if activity != "" {
		data.Activities = []*discordgo.Activity{{Name: activity, Type: parsedType}}
	}
	if err := s.UpdateStatusComplex(data); err != nil {
		return fmt.Errorf("updating presence: %w", err)
	}

	svc.audit(ctx, store.AuditIdentity, "Presence updated", store.SeveritySuccess)
	svc.bus.Publish(events.Notification{Category: events.CategoryStatus})
	return nil
}

// Subscribe registers a notification stream. The stream closes when ctx
// is canceled.
func (svc *Service) Subscribe(ctx context.Context) (<-chan events.Notification, string) {
	return svc.bus.Subscribe(ctx)
}

// Unsubscribe removes a subscriber by id.
func (svc *Service) Unsubscribe(id string) {
	svc.bus.Unsubscribe(id)
}

// Logs returns the audit log, newest first.
func (svc *Service) Logs() []store.AuditEntry {
	return svc.store.AuditLog()
}

// ClearLogs empties the audit log.
func (svc *Service) ClearLogs(ctx context.Context) error {
	if err := svc.store.ClearAuditLog(ctx); err != nil {
		return err
	}
	svc.bus.Publish(events.Notification{Category: events.CategoryLogs})
	return nil
}

// Messages returns captured direct messages, newest first.
func (svc *Service) Messages() []store.InboundMessage {
	return svc.store.Messages()
}

// ClearMessages empties the captured direct messages.
func (svc *Service) ClearMessages(ctx context.Context) error {
	if err := svc.store.ClearMessages(ctx); err != nil {
		return err
	}
	svc.bus.Publish(events.Notification{Category: events.CategoryMessages})
	return nil
}

// Waitlist returns all waitlist entries.
func (svc *Service) Waitlist() []store.WaitlistEntry {
	return svc.store.Waitlist()
}

// AddWaitlistEntry appends a waitlist signup.
func (svc *Service) AddWaitlistEntry(ctx context.Context, entry store.WaitlistEntry) (store.WaitlistEntry, error) {
	if entry.Name == "" || entry.Email == "" {
		return store.WaitlistEntry{}, fmt.Errorf("%w: name and email are required", ErrValidation)
	}
	saved, err := svc.store.AddWaitlistEntry(ctx, entry)
	if err != nil {
		return store.WaitlistEntry{}, err
	}
	svc.bus.Publish(events.Notification{Category: events.CategoryWaitlist})
	return saved, nil
}

// RemoveWaitlistEntry deletes a waitlist entry by id.
func (svc *Service) RemoveWaitlistEntry(ctx context.Context, id string) error {
	if err := svc.store.RemoveWaitlistEntry(ctx, id); err != nil {
		return err
	}
	svc.bus.Publish(events.Notification{Category: events.CategoryWaitlist})
	return nil
}

// Close stops the gateway and releases the bus and store.
func (svc *Service) Close(ctx context.Context) error {
	var errs []error
	if err := svc.manager.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping gateway: %w", err))
	}
	svc.bus.Close()
	if err := svc.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

func (svc *Service) audit(ctx context.Context, category, message, severity string) {
	if _, err := svc.store.AppendAudit(ctx, store.AuditEntry{
		Category: category,
		Message:  message,
		Severity: severity,
	}); err != nil {
		svc.logger.Error("appending audit entry", "error", err)
		return
	}
	svc.bus.Publish(events.Notification{Category: events.CategoryLogs})
}
