// ABOUTME: Tests for the pure permission evaluator
// ABOUTME: Covers level monotonicity, the fallback chain ordering, and native flag grants

package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vanidev/guildgate/internal/store"
)

func configWith(owner, admin, mod []string) store.GuildConfig {
	return store.GuildConfig{Roles: store.RoleSets{Owner: owner, Admin: admin, Mod: mod}}
}

func TestEvaluateConfiguredRoles(t *testing.T) {
	cfg := configWith([]string{"R-owner"}, []string{"R-admin"}, []string{"R-mod"})

	t.Run("mod role grants mod only", func(t *testing.T) {
		actor := Actor{RoleIDs: []string{"R-mod"}}
		assert.True(t, Evaluate(actor, cfg, LevelMod))
		assert.False(t, Evaluate(actor, cfg, LevelAdmin))
		assert.False(t, Evaluate(actor, cfg, LevelOwner))
	})

	t.Run("admin role grants admin and mod", func(t *testing.T) {
		actor := Actor{RoleIDs: []string{"R-admin"}}
		assert.True(t, Evaluate(actor, cfg, LevelMod))
		assert.True(t, Evaluate(actor, cfg, LevelAdmin))
		assert.False(t, Evaluate(actor, cfg, LevelOwner))
	})

	t.Run("owner role grants every level", func(t *testing.T) {
		actor := Actor{RoleIDs: []string{"R-owner"}}
		assert.True(t, Evaluate(actor, cfg, LevelMod))
		assert.True(t, Evaluate(actor, cfg, LevelAdmin))
		assert.True(t, Evaluate(actor, cfg, LevelOwner))
	})
}

func TestEvaluateNativeFallbacks(t *testing.T) {
	empty := store.GuildConfig{}

	t.Run("guild owner grants every level regardless of config", func(t *testing.T) {
		actor := Actor{GuildOwner: true}
		assert.True(t, Evaluate(actor, empty, LevelOwner))
		assert.True(t, Evaluate(actor, empty, LevelAdmin))
		assert.True(t, Evaluate(actor, empty, LevelMod))
	})

	t.Run("administrator flag grants admin and mod", func(t *testing.T) {
		actor := Actor{Administrator: true}
		assert.False(t, Evaluate(actor, empty, LevelOwner))
		assert.True(t, Evaluate(actor, empty, LevelAdmin))
		assert.True(t, Evaluate(actor, empty, LevelMod))
	})

	t.Run("moderate-members flag grants mod only", func(t *testing.T) {
		actor := Actor{ModerateMembers: true}
		assert.False(t, Evaluate(actor, empty, LevelAdmin))
		assert.True(t, Evaluate(actor, empty, LevelMod))
	})
}

func TestEvaluateDeniesByDefault(t *testing.T) {
	actor := Actor{RoleIDs: []string{"R-unrelated"}}
	cfg := configWith([]string{"R-owner"}, nil, nil)

	assert.False(t, Evaluate(actor, cfg, LevelMod))
	assert.False(t, Evaluate(actor, cfg, LevelAdmin))
	assert.False(t, Evaluate(actor, cfg, LevelOwner))
}

func TestEvaluateUnknownLevelNeverGranted(t *testing.T) {
	actor := Actor{GuildOwner: true}
	assert.False(t, Evaluate(actor, store.GuildConfig{}, Level("superuser")))
}

func TestLevelImplies(t *testing.T) {
	assert.True(t, LevelOwner.Implies(LevelAdmin))
	assert.True(t, LevelOwner.Implies(LevelMod))
	assert.True(t, LevelAdmin.Implies(LevelMod))
	assert.False(t, LevelMod.Implies(LevelAdmin))
	assert.False(t, LevelAdmin.Implies(LevelOwner))
	assert.True(t, LevelMod.Implies(LevelMod))
}

func TestLevelValid(t *testing.T) {
	assert.True(t, LevelMod.Valid())
	assert.False(t, Level("root").Valid())
}
