// ABOUTME: SQLite-backed collection store using modernc.org/sqlite
// ABOUTME: Loads every collection into memory at open and rewrites it fully on each mutation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists the control-plane collections. Each collection lives fully
// in memory; a mutation updates the in-memory copy and rewrites the backing
// table inside a single transaction. A single mutex serializes all access,
// which also makes bounded-log eviction strictly FIFO under concurrent
// appends.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.Mutex
	logs     []AuditEntry     // chronological, oldest first
	messages []InboundMessage // chronological, oldest first
	commands []Command
	configs  map[string]GuildConfig
	override Override
	waitlist []WaitlistEntry
}

// Open creates a store at the given path. The schema is created if missing
// and all collections are loaded into memory. Parent directories are created
// as needed. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps readers from blocking the single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{
		db:       db,
		logger:   logger.With("component", "store"),
		configs:  make(map[string]GuildConfig),
		override: Override{Mode: OverrideAuto},
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading collections: %w", err)
	}

	s.logger.Info("store initialized",
		"path", path,
		"logs", len(s.logs),
		"messages", len(s.messages),
		"commands", len(s.commands),
		"guild_configs", len(s.configs),
		"waitlist", len(s.waitlist),
	)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_log (
			position  INTEGER PRIMARY KEY,
			id        TEXT NOT NULL,
			category  TEXT NOT NULL,
			message   TEXT NOT NULL,
			severity  TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS direct_messages (
			position  INTEGER PRIMARY KEY,
			id        TEXT NOT NULL,
			author    TEXT NOT NULL,
			content   TEXT NOT NULL,
			attachments TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS custom_commands (
			name             TEXT NOT NULL,
			guild_id         TEXT NOT NULL,
			description      TEXT NOT NULL,
			body             TEXT NOT NULL,
			required_role_id TEXT NOT NULL,
			PRIMARY KEY (name, guild_id)
		);

		CREATE TABLE IF NOT EXISTS guild_configs (
			guild_id TEXT PRIMARY KEY,
			roles    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS status_override (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			mode    TEXT NOT NULL,
			message TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS waitlist (
			position  INTEGER PRIMARY KEY,
			id        TEXT NOT NULL,
			name      TEXT NOT NULL,
			email     TEXT NOT NULL,
			reason    TEXT NOT NULL,
			invite    TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// loadAll reads every collection from disk into memory. Called once at open.
func (s *Store) loadAll() error {
	if err := s.loadLogs(); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	if err := s.loadMessages(); err != nil {
		return fmt.Errorf("direct messages: %w", err)
	}
	if err := s.loadCommands(); err != nil {
		return fmt.Errorf("custom commands: %w", err)
	}
	if err := s.loadConfigs(); err != nil {
		return fmt.Errorf("guild configs: %w", err)
	}
	if err := s.loadOverride(); err != nil {
		return fmt.Errorf("status override: %w", err)
	}
	if err := s.loadWaitlist(); err != nil {
		return fmt.Errorf("waitlist: %w", err)
	}
	return nil
}

func (s *Store) loadLogs() error {
	rows, err := s.db.Query(`SELECT id, category, message, severity, timestamp FROM audit_log ORDER BY position`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Category, &e.Message, &e.Severity, &e.Timestamp); err != nil {
			return err
		}
		s.logs = append(s.logs, e)
	}
	return rows.Err()
}

func (s *Store) loadMessages() error {
	rows, err := s.db.Query(`SELECT id, author, content, attachments, timestamp FROM direct_messages ORDER BY position`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var m InboundMessage
		var author, attachments string
		if err := rows.Scan(&m.ID, &author, &m.Content, &attachments, &m.Timestamp); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(author), &m.Author); err != nil {
			return fmt.Errorf("decoding author for message %s: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return fmt.Errorf("decoding attachments for message %s: %w", m.ID, err)
		}
		s.messages = append(s.messages, m)
	}
	return rows.Err()
}

func (s *Store) loadCommands() error {
	rows, err := s.db.Query(`SELECT name, guild_id, description, body, required_role_id FROM custom_commands ORDER BY name, guild_id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var c Command
		if err := rows.Scan(&c.Name, &c.GuildID, &c.Description, &c.Body, &c.RequiredRoleID); err != nil {
			return err
		}
		s.commands = append(s.commands, c)
	}
	return rows.Err()
}

func (s *Store) loadConfigs() error {
	rows, err := s.db.Query(`SELECT guild_id, roles FROM guild_configs`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var guildID, roles string
		if err := rows.Scan(&guildID, &roles); err != nil {
			return err
		}
		var cfg GuildConfig
		if err := json.Unmarshal([]byte(roles), &cfg.Roles); err != nil {
			return fmt.Errorf("decoding roles for guild %s: %w", guildID, err)
		}
		s.configs[guildID] = cfg
	}
	return rows.Err()
}

func (s *Store) loadOverride() error {
	row := s.db.QueryRow(`SELECT mode, message FROM status_override WHERE id = 1`)
	var o Override
	switch err := row.Scan(&o.Mode, &o.Message); err {
	case nil:
		s.override = o
	case sql.ErrNoRows:
		// Keep the default auto mode.
	default:
		return err
	}
	return nil
}

func (s *Store) loadWaitlist() error {
	rows, err := s.db.Query(`SELECT id, name, email, reason, invite, timestamp FROM waitlist ORDER BY position`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e WaitlistEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Reason, &e.Invite, &e.Timestamp); err != nil {
			return err
		}
		s.waitlist = append(s.waitlist, e)
	}
	return rows.Err()
}

// rewrite replaces the full contents of a table inside one transaction.
// insert is called with the transaction to write the current in-memory rows.
func (s *Store) rewrite(ctx context.Context, table string, insert func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("writing %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", table, err)
	}
	return nil
}

func (s *Store) saveLogs(ctx context.Context) error {
	return s.rewrite(ctx, "audit_log", func(tx *sql.Tx) error {
		for i, e := range s.logs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO audit_log (position, id, category, message, severity, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
				i, e.ID, e.Category, e.Message, e.Severity, e.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) saveMessages(ctx context.Context) error {
	return s.rewrite(ctx, "direct_messages", func(tx *sql.Tx) error {
		for i, m := range s.messages {
			author, err := json.Marshal(m.Author)
			if err != nil {
				return err
			}
			attachments, err := json.Marshal(m.Attachments)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO direct_messages (position, id, author, content, attachments, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
				i, m.ID, string(author), m.Content, string(attachments), m.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) saveCommands(ctx context.Context) error {
	return s.rewrite(ctx, "custom_commands", func(tx *sql.Tx) error {
		for _, c := range s.commands {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO custom_commands (name, guild_id, description, body, required_role_id) VALUES (?, ?, ?, ?, ?)`,
				c.Name, c.GuildID, c.Description, c.Body, c.RequiredRoleID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) saveConfigs(ctx context.Context) error {
	return s.rewrite(ctx, "guild_configs", func(tx *sql.Tx) error {
		for guildID, cfg := range s.configs {
			roles, err := json.Marshal(cfg.Roles)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO guild_configs (guild_id, roles) VALUES (?, ?)`,
				guildID, string(roles)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) saveOverride(ctx context.Context) error {
	return s.rewrite(ctx, "status_override", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO status_override (id, mode, message) VALUES (1, ?, ?)`,
			s.override.Mode, s.override.Message)
		return err
	})
}

func (s *Store) saveWaitlist(ctx context.Context) error {
	return s.rewrite(ctx, "waitlist", func(tx *sql.Tx) error {
		for i, e := range s.waitlist {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO waitlist (position, id, name, email, reason, invite, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				i, e.ID, e.Name, e.Email, e.Reason, e.Invite, e.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendAudit appends an audit entry, evicting the oldest entry once the log
// is at capacity. A missing ID or timestamp is filled in.
func (s *Store) AppendAudit(ctx context.Context, entry AuditEntry) (AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = SeveritySuccess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, entry)
	if len(s.logs) > MaxLogEntries {
		s.logs = s.logs[len(s.logs)-MaxLogEntries:]
	}
	if err := s.saveLogs(ctx); err != nil {
		return AuditEntry{}, err
	}
	return entry, nil
}

// AuditLog returns all audit entries, newest first.
func (s *Store) AuditLog() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AuditEntry, len(s.logs))
	for i, e := range s.logs {
		out[len(s.logs)-1-i] = e
	}
	return out
}

// ClearAuditLog removes all audit entries.
func (s *Store) ClearAuditLog(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = nil
	return s.saveLogs(ctx)
}

// AppendMessage records a captured direct message, evicting the oldest once
// the log is at capacity.
func (s *Store) AppendMessage(ctx context.Context, msg InboundMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if len(s.messages) > MaxLogEntries {
		s.messages = s.messages[len(s.messages)-MaxLogEntries:]
	}
	return s.saveMessages(ctx)
}

// Messages returns all captured direct messages, newest first.
func (s *Store) Messages() []InboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]InboundMessage, len(s.messages))
	for i, m := range s.messages {
		out[len(s.messages)-1-i] = m
	}
	return out
}

// ClearMessages removes all captured direct messages.
func (s *Store) ClearMessages(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	return s.saveMessages(ctx)
}

// UpsertCommand writes a custom command definition. An existing definition
// with the same (name, guild) identity is replaced.
func (s *Store) UpsertCommand(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, c := range s.commands {
		if c.Name == cmd.Name && c.GuildID == cmd.GuildID {
			s.commands[i] = cmd
			replaced = true
			break
		}
	}
	if !replaced {
		s.commands = append(s.commands, cmd)
	}
	return s.saveCommands(ctx)
}

// DeleteCommand removes the custom command with the given identity.
// Returns ErrNotFound if no such command exists.
func (s *Store) DeleteCommand(ctx context.Context, name, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.commands[:0]
	found := false
	for _, c := range s.commands {
		if c.Name == name && c.GuildID == guildID {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return fmt.Errorf("%w: command %q", ErrNotFound, name)
	}
	s.commands = kept
	return s.saveCommands(ctx)
}

// Commands returns a copy of all custom command definitions.
func (s *Store) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// GuildConfig returns the permission configuration for a guild. A guild with
// no stored entry yields the zero configuration (no roles granted).
func (s *Store) GuildConfig(guildID string) GuildConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.configs[guildID]
}

// SetGuildConfig replaces the permission configuration for a guild.
func (s *Store) SetGuildConfig(ctx context.Context, guildID string, cfg GuildConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[guildID] = cfg
	return s.saveConfigs(ctx)
}

// Override returns the current status override.
func (s *Store) Override() Override {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.override
}

// SetOverride replaces the status override.
func (s *Store) SetOverride(ctx context.Context, o Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.override = o
	return s.saveOverride(ctx)
}

// Waitlist returns a copy of all waitlist entries in insertion order.
func (s *Store) Waitlist() []WaitlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WaitlistEntry, len(s.waitlist))
	copy(out, s.waitlist)
	return out
}

// AddWaitlistEntry appends a waitlist entry, assigning an ID and timestamp
// if missing, and returns the stored entry.
func (s *Store) AddWaitlistEntry(ctx context.Context, entry WaitlistEntry) (WaitlistEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.waitlist = append(s.waitlist, entry)
	if err := s.saveWaitlist(ctx); err != nil {
		return WaitlistEntry{}, err
	}
	return entry, nil
}

// RemoveWaitlistEntry deletes the waitlist entry with the given ID.
// Returns ErrNotFound if no such entry exists.
func (s *Store) RemoveWaitlistEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.waitlist[:0]
	found := false
	for _, e := range s.waitlist {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("%w: waitlist entry %q", ErrNotFound, id)
	}
	s.waitlist = kept
	return s.saveWaitlist(ctx)
}
