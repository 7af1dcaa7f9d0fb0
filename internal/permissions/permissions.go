// ABOUTME: Pure permission evaluator for dashboard-configured role levels
// ABOUTME: Resolves an ordered short-circuit chain over configured roles and native platform flags

package permissions

import (
	"github.com/vanidev/guildgate/internal/store"
)

// Level is a requested access level. Levels form a lattice: owner implies
// admin and mod, admin implies mod.
type Level string

const (
	LevelOwner Level = "owner"
	LevelAdmin Level = "admin"
	LevelMod   Level = "mod"
)

// rank orders levels for implication checks. Unknown levels rank lowest and
// are never granted.
func (l Level) rank() int {
	switch l {
	case LevelOwner:
		return 3
	case LevelAdmin:
		return 2
	case LevelMod:
		return 1
	default:
		return 0
	}
}

// Implies reports whether holding level l satisfies a request for level
// other. An unknown requested level is never satisfied.
func (l Level) Implies(other Level) bool {
	return other.rank() > 0 && l.rank() >= other.rank()
}

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool { return l.rank() > 0 }

// Actor is the value snapshot of the acting member. Only role IDs and
// pre-resolved platform flags enter the evaluation; no live platform objects.
type Actor struct {
	RoleIDs []string

	// GuildOwner is true when the actor is the guild's native owner.
	GuildOwner bool

	// Administrator is true when the actor holds the platform's native
	// administrator permission flag.
	Administrator bool

	// ModerateMembers is true when the actor holds the platform's native
	// moderate-members permission flag.
	ModerateMembers bool
}

// Evaluate reports whether the actor is granted the requested level under
// the guild's configuration. Checks run in a fixed order and short-circuit
// on the first one that grants a level implying the request:
//
//  1. configured owner role        -> owner
//  2. native guild ownership       -> owner
//  3. configured admin role        -> admin
//  4. native administrator flag    -> admin
//  5. configured mod role          -> mod
//  6. native moderate-members flag -> mod
//
// The function is pure: it reads only its arguments.
func Evaluate(actor Actor, cfg store.GuildConfig, level Level) bool {
	checks := []struct {
		grants Level
		held   bool
	}{
		{LevelOwner, hasAny(actor.RoleIDs, cfg.Roles.Owner)},
		{LevelOwner, actor.GuildOwner},
		{LevelAdmin, hasAny(actor.RoleIDs, cfg.Roles.Admin)},
		{LevelAdmin, actor.Administrator},
		{LevelMod, hasAny(actor.RoleIDs, cfg.Roles.Mod)},
		{LevelMod, actor.ModerateMembers},
	}
	for _, c := range checks {
		if c.held && c.grants.Implies(level) {
			return true
		}
	}
	return false
}

// hasAny reports whether any of the actor's roles appears in the granted
// set.
func hasAny(roles, granted []string) bool {
	for _, g := range granted {
		for _, r := range roles {
			if r == g {
				return true
			}
		}
	}
	return false
}
