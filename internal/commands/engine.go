// ABOUTME: Command synchronization engine reconciling local definitions against the remote registry
// ABOUTME: Pushes full-replacement batches per scope with per-guild failure isolation

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/vanidev/guildgate/internal/events"
	"github.com/vanidev/guildgate/internal/store"
)

// ErrProtected is returned when a mutation targets a built-in command name.
var ErrProtected = errors.New("protected built-in command")

// ErrInvalidName is returned when a command name normalizes to nothing.
var ErrInvalidName = errors.New("invalid command name")

// ErrSyncFailed is the sentinel all remote registry push failures wrap.
var ErrSyncFailed = errors.New("command sync failed")

// defaultDescription fills in for custom commands saved without one.
const defaultDescription = "Custom command"

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9_-]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// NormalizeName lowercases a raw name, converts whitespace runs to hyphens,
// and strips everything the platform rejects. Returns ErrInvalidName when
// nothing survives.
func NormalizeName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = whitespaceRun.ReplaceAllString(name, "-")
	name = invalidNameChars.ReplaceAllString(name, "")
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
	}
	return name, nil
}

// Registrar is the remote command registry surface the engine pushes to.
// *discordgo.Session satisfies it; an empty guildID addresses the global
// registry.
type Registrar interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// SyncError aggregates per-scope registry push failures from one Sync run.
type SyncError struct {
	Global error
	Guilds map[string]error
}

func (e *SyncError) Error() string {
	var parts []string
	if e.Global != nil {
		parts = append(parts, fmt.Sprintf("global: %v", e.Global))
	}
	guilds := make([]string, 0, len(e.Guilds))
	for id := range e.Guilds {
		guilds = append(guilds, id)
	}
	sort.Strings(guilds)
	for _, id := range guilds {
		parts = append(parts, fmt.Sprintf("guild %s: %v", id, e.Guilds[id]))
	}
	return fmt.Sprintf("%v: %s", ErrSyncFailed, strings.Join(parts, "; "))
}

func (e *SyncError) Unwrap() error { return ErrSyncFailed }

// AffectsScope reports whether the failure touched the given scope. An
// empty guildID means the global scope.
func (e *SyncError) AffectsScope(guildID string) bool {
	if guildID == "" {
		return e.Global != nil
	}
	// A global failure aborts before guild pushes, so it affects every scope.
	if e.Global != nil {
		return true
	}
	_, ok := e.Guilds[guildID]
	return ok
}

// Engine reconciles the locally authoritative command set (built-ins plus
// stored custom commands) against the remote registry.
type Engine struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
}

// NewEngine creates a synchronization engine.
func NewEngine(s *store.Store, bus *events.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  s,
		bus:    bus,
		logger: logger.With("component", "command-sync"),
	}
}

// Info describes one command in a listing. Built-ins are flagged immutable.
type Info struct {
	store.Command
	BuiltIn bool `json:"isBuiltIn"`
}

// List returns built-ins followed by the stored custom command set.
func (e *Engine) List() []Info {
	out := make([]Info, 0, len(builtins))
	for _, b := range builtins {
		out = append(out, Info{
			Command: store.Command{Name: b.Name, Description: b.Description, Body: "System command"},
			BuiltIn: true,
		})
	}
	for _, c := range e.store.Commands() {
		out = append(out, Info{Command: c})
	}
	return out
}

// Sync pushes the full command set to the remote registry: one replace-all
// batch for the global scope, then one per guild with stored commands. A
// failing guild push is recorded and does not abort the remaining guilds;
// a failing global push aborts the run. Returns nil or a *SyncError.
func (e *Engine) Sync(ctx context.Context, appID string, reg Registrar) error {
	custom := e.store.Commands()

	global := Builtins()
	guildBatches := make(map[string][]*discordgo.ApplicationCommand)
	for _, c := range custom {
		app := &discordgo.ApplicationCommand{Name: c.Name, Description: c.Description}
		if app.Description == "" {
			app.Description = defaultDescription
		}
		if c.Global() {
			global = append(global, app)
		} else {
			guildBatches[c.GuildID] = append(guildBatches[c.GuildID], app)
		}
	}

	e.logger.Info("pushing global commands", "count", len(global))
	if _, err := reg.ApplicationCommandBulkOverwrite(appID, "", global, discordgo.WithContext(ctx)); err != nil {
		e.audit(ctx, fmt.Sprintf("Command registration failed: %v", err), store.SeverityError)
		return &SyncError{Global: err}
	}

	guildErrs := make(map[string]error)
	for guildID, batch := range guildBatches {
		e.logger.Info("pushing guild commands", "guild_id", guildID, "count", len(batch))
		if _, err := reg.ApplicationCommandBulkOverwrite(appID, guildID, batch, discordgo.WithContext(ctx)); err != nil {
			e.logger.Error("guild command push failed", "guild_id", guildID, "error", err)
			guildErrs[guildID] = err
		}
	}

	if len(guildErrs) > 0 {
		e.audit(ctx, fmt.Sprintf("Command registration incomplete: %d of %d guild pushes failed",
			len(guildErrs), len(guildBatches)), store.SeverityError)
		return &SyncError{Guilds: guildErrs}
	}

	e.audit(ctx, fmt.Sprintf("Registered commands (%d global, %d guilds)", len(global), len(guildBatches)), store.SeveritySuccess)
	return nil
}

// Upsert validates and stores a custom command, then re-synchronizes the
// remote registry before reporting success. Returns the normalized name.
// A nil registrar (gateway offline) skips the push; the next connect will
// run a full sync. A sync failure in a scope other than the command's own
// is audited but does not fail the call.
func (e *Engine) Upsert(ctx context.Context, cmd store.Command, appID string, reg Registrar) (string, error) {
	name, err := NormalizeName(cmd.Name)
	if err != nil {
		return "", err
	}
	if IsBuiltin(name) {
		return "", fmt.Errorf("%w: /%s", ErrProtected, name)
	}
	cmd.Name = name

	if err := e.store.UpsertCommand(ctx, cmd); err != nil {
		return "", err
	}
	if err := e.syncScope(ctx, cmd.GuildID, appID, reg); err != nil {
		return "", err
	}
	e.bus.Publish(events.Notification{Category: events.CategoryCommands})
	return name, nil
}

// Delete removes a custom command and re-synchronizes the remote registry.
func (e *Engine) Delete(ctx context.Context, name, guildID, appID string, reg Registrar) error {
	if IsBuiltin(name) {
		return fmt.Errorf("%w: /%s", ErrProtected, name)
	}
	if err := e.store.DeleteCommand(ctx, name, guildID); err != nil {
		return err
	}
	if err := e.syncScope(ctx, guildID, appID, reg); err != nil {
		return err
	}
	e.bus.Publish(events.Notification{Category: events.CategoryCommands})
	return nil
}

// syncScope runs a full sync and surfaces only failures that touched the
// caller's own scope. The edit is already persisted locally either way.
func (e *Engine) syncScope(ctx context.Context, guildID, appID string, reg Registrar) error {
	if reg == nil {
		e.logger.Debug("gateway offline, deferring command sync")
		return nil
	}
	err := e.Sync(ctx, appID, reg)
	if err == nil {
		return nil
	}
	var syncErr *SyncError
	if errors.As(err, &syncErr) && !syncErr.AffectsScope(guildID) {
		return nil
	}
	return err
}

func (e *Engine) audit(ctx context.Context, message, severity string) {
	if _, err := e.store.AppendAudit(ctx, store.AuditEntry{
		Category: store.AuditSystem,
		Message:  message,
		Severity: severity,
	}); err != nil {
		e.logger.Error("appending audit entry", "error", err)
		return
	}
	e.bus.Publish(events.Notification{Category: events.CategoryLogs})
}
