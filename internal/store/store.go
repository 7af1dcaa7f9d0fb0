// ABOUTME: Data types and errors for guildgate persistence
// ABOUTME: Defines audit entries, captured messages, custom commands, guild configs, and waitlist records

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// MaxLogEntries bounds the audit log and the captured message log.
// Once a log reaches capacity the oldest entry is evicted first.
const MaxLogEntries = 250

// Audit entry categories.
const (
	AuditSystem     = "system"
	AuditModeration = "moderation"
	AuditIdentity   = "identity"
)

// Audit entry severities.
const (
	SeveritySuccess = "success"
	SeverityError   = "error"
)

// AuditEntry is a single append-only record of a system, moderation, or
// identity event.
type AuditEntry struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Author is a snapshot of a message author at capture time.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Tag      string `json:"tag"`
	Avatar   string `json:"avatar"`
}

// InboundMessage is a captured direct (non-guild) message.
type InboundMessage struct {
	ID          string    `json:"id"`
	Author      Author    `json:"author"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments"`
	Timestamp   time.Time `json:"timestamp"`
}

// Command is a custom slash command definition. A command is uniquely
// identified by (Name, GuildID); an empty GuildID means the command is
// registered globally. Writing a definition with the same identity replaces
// the prior one.
type Command struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Body           string `json:"body"`
	GuildID        string `json:"guildId,omitempty"`
	RequiredRoleID string `json:"requiredRoleId,omitempty"`
}

// Global reports whether the command is registered in the global scope.
func (c Command) Global() bool { return c.GuildID == "" }

// RoleSets maps the three access levels to explicitly granted role IDs.
type RoleSets struct {
	Owner []string `json:"owner"`
	Admin []string `json:"admin"`
	Mod   []string `json:"mod"`
}

// GuildConfig is the per-guild permission configuration. A missing guild
// entry means no roles are explicitly granted; native permission flags and
// guild ownership still apply.
type GuildConfig struct {
	Roles RoleSets `json:"roles"`
}

// Override modes for the publicly reported connection state.
const (
	OverrideAuto        = "auto"
	OverrideIssues      = "issues"
	OverrideMaintenance = "maintenance"
)

// Override is the operator-set status override. When Mode is not
// OverrideAuto it replaces the reported connection state entirely.
type Override struct {
	Mode    string `json:"mode"`
	Message string `json:"message"`
}

// WaitlistEntry is a dashboard waitlist signup.
type WaitlistEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Reason    string    `json:"reason"`
	Invite    string    `json:"invite,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
