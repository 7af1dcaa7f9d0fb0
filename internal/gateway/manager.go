// ABOUTME: Gateway connection manager owning the singleton Discord session
// ABOUTME: Handles start, stop, and restart with a cooldown between cycles

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vanidev/guildgate/internal/discord"
	"github.com/vanidev/guildgate/internal/events"
	"github.com/vanidev/guildgate/internal/store"
)

// ErrNotConnected is returned when an operation needs a live gateway
// session and none exists.
var ErrNotConnected = errors.New("gateway not connected")

// ErrNoToken is returned when Start is called without a bot token.
var ErrNoToken = errors.New("no bot token configured")

// State is the gateway connection state as reported to the dashboard.
type State string

const (
	StateOffline      State = "OFFLINE"
	StateConnecting   State = "CONNECTING"
	StateReconnecting State = "RECONNECTING"
	StateReady        State = "READY"
	StateIdle         State = "IDLE"
	StateNearly       State = "NEARLY"
	StateDisconnected State = "DISCONNECTED"
)

// minRestartCooldown is the floor for the pause between a stop and the
// following start during a restart cycle.
const minRestartCooldown = time.Second

// Config carries the manager's static settings.
type Config struct {
	Token           string
	RestartCooldown time.Duration
	Presence        discordgo.UpdateStatusData
}

// Manager owns the process-wide gateway connection. At most one session
// exists at a time; all transitions go through the manager's lock.
type Manager struct {
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
	cfg    Config

	// onConnect runs after every successful Ready, off the event goroutine.
	// The control service uses it to re-sync the command registry.
	onConnect func(ctx context.Context, s *discordgo.Session)

	// onInteraction receives slash-command interactions for routing.
	onInteraction func(s *discordgo.Session, i *discordgo.InteractionCreate)

	// newSession and openSession are seams for tests; production uses
	// discord.NewSession and (*discordgo.Session).Open.
	newSession  func(token string) (*discordgo.Session, error)
	openSession func(s *discordgo.Session) error

	// opMu serializes Start, Stop, and Restart against each other.
	opMu sync.Mutex

	mu      sync.Mutex
	session *discordgo.Session
	state   State
}

// NewManager creates a gateway manager in the OFFLINE state.
func NewManager(cfg Config, s *store.Store, bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RestartCooldown < minRestartCooldown {
		cfg.RestartCooldown = minRestartCooldown
	}
	return &Manager{
		store:       s,
		bus:         bus,
		logger:      logger.With("component", "gateway"),
		cfg:         cfg,
		newSession:  discord.NewSession,
		openSession: func(s *discordgo.Session) error { return s.Open() },
		state:       StateOffline,
	}
}

// OnConnect registers the post-connect hook. Must be called before Start.
func (m *Manager) OnConnect(fn func(ctx context.Context, s *discordgo.Session)) {
	m.onConnect = fn
}

// OnInteraction registers the interaction handler. Must be called before
// Start.
func (m *Manager) OnInteraction(fn func(s *discordgo.Session, i *discordgo.InteractionCreate)) {
	m.onInteraction = fn
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the live session, or ErrNotConnected when the gateway
// is not up. Callers must not hold the returned session across a restart.
func (m *Manager) Session() (*discordgo.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.state != StateReady {
		return nil, ErrNotConnected
	}
	return m.session, nil
}

// Start brings the gateway up. Calling Start while already connecting or
// connected is a no-op. A failed handshake leaves the manager OFFLINE and
// records the failure in the audit log.
func (m *Manager) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.start(ctx)
}

func (m *Manager) start(ctx context.Context) error {
	if m.cfg.Token == "" {
		return ErrNoToken
	}

	m.mu.Lock()
	if m.state == StateReady || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	old := m.session
	m.session = nil
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	// A stale reconnecting session must not survive a fresh dial.
	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Warn("closing stale session", "error", err)
		}
	}

	session, err := m.newSession(m.cfg.Token)
	if err != nil {
		m.failStart(ctx, fmt.Errorf("creating session: %w", err))
		return err
	}
	m.registerHandlers(session)

	// The session is adopted before the dial so that events it dispatches
	// while connecting pass the ownership check.
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	if err := m.openSession(session); err != nil {
		m.failStart(ctx, fmt.Errorf("opening gateway connection: %w", err))
		return err
	}

	m.logger.Info("gateway connection opened")
	return nil
}

// owns reports whether s is the session the manager currently holds.
// Closing a discordgo session still dispatches a final Disconnect event,
// and a replaced session may emit events after the manager let go of it;
// state-transition handlers drop events from sessions the manager no
// longer owns.
func (m *Manager) owns(s *discordgo.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && m.session == s
}

func (m *Manager) failStart(ctx context.Context, err error) {
	m.mu.Lock()
	m.session = nil
	m.setStateLocked(StateOffline)
	m.mu.Unlock()

	m.logger.Error("gateway start failed", "error", err)
	m.audit(ctx, store.AuditSystem, fmt.Sprintf("Bot failed to start: %v", err), store.SeverityError)
}

// Stop tears the session down. Stopping an offline gateway is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.stop(ctx)
}

func (m *Manager) stop(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.session = nil
	wasOffline := m.state == StateOffline
	m.setStateLocked(StateOffline)
	m.mu.Unlock()

	if session == nil && wasOffline {
		return nil
	}
	if session != nil {
		if err := session.Close(); err != nil {
			m.logger.Warn("closing gateway session", "error", err)
		}
	}

	m.logger.Info("gateway connection closed")
	m.audit(ctx, store.AuditSystem, "Bot stopped", store.SeveritySuccess)
	return nil
}

// Restart performs stop, cooldown, start as one serialized cycle. The
// cooldown honors context cancellation.
func (m *Manager) Restart(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.stop(ctx); err != nil {
		return err
	}

	m.logger.Info("restart cooldown", "duration", m.cfg.RestartCooldown)
	timer := time.NewTimer(m.cfg.RestartCooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	return m.start(ctx)
}

// setStateLocked updates the state and notifies subscribers. Callers must
// hold m.mu.
func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	m.state = next
	m.bus.Publish(events.Notification{Category: events.CategoryStatus})
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStateLocked(next)
}

func (m *Manager) audit(ctx context.Context, category, message, severity string) {
	if _, err := m.store.AppendAudit(ctx, store.AuditEntry{
		Category: category,
		Message:  message,
		Severity: severity,
	}); err != nil {
		m.logger.Error("appending audit entry", "error", err)
		return
	}
	m.bus.Publish(events.Notification{Category: events.CategoryLogs})
}
