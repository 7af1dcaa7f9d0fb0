// ABOUTME: Tests for the interaction router
// ABOUTME: Covers custom-command resolution, role gating, built-ins, and reply fallbacks

package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanidev/guildgate/internal/events"
	"github.com/vanidev/guildgate/internal/gateway"
	"github.com/vanidev/guildgate/internal/moderation"
	"github.com/vanidev/guildgate/internal/store"
)

type fakePlatform struct {
	responses   []*discordgo.InteractionResponse
	failReplies int
	members     map[string]*discordgo.Member
	kicked      []string
	banned      []string
	rolesAdded  map[string]string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		members:    map[string]*discordgo.Member{},
		rolesAdded: map[string]string{},
	}
}

func (f *fakePlatform) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	if f.failReplies > 0 {
		f.failReplies--
		return errors.New("malformed payload")
	}
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakePlatform) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	m, ok := f.members[userID]
	if !ok {
		return nil, errors.New("unknown member")
	}
	return m, nil
}

func (f *fakePlatform) HeartbeatLatency() time.Duration { return 42 * time.Millisecond }

func (f *fakePlatform) GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error {
	f.kicked = append(f.kicked, userID)
	return nil
}

func (f *fakePlatform) GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error {
	f.banned = append(f.banned, userID)
	return nil
}

func (f *fakePlatform) GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error {
	return nil
}

func (f *fakePlatform) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm"}, nil
}

func (f *fakePlatform) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

func (f *fakePlatform) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	f.rolesAdded[userID] = roleID
	return nil
}

func (f *fakePlatform) GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	return nil
}

func newTestRouter(t *testing.T) (*Router, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir()+"/test.db", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus(nil)
	dispatcher := moderation.NewDispatcher(st, bus, nil)
	r := New(st, dispatcher, func() gateway.State { return gateway.StateReady }, nil)
	return r, st
}

func invocation(name, guildID string, member *discordgo.Member, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: guildID,
			Member:  member,
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: opts,
			},
		},
	}
}

func plainMember(id string, roles ...string) *discordgo.Member {
	return &discordgo.Member{
		User:  &discordgo.User{ID: id, Username: "u" + id, Discriminator: "0"},
		Roles: roles,
	}
}

func testGuild() *discordgo.Guild {
	return &discordgo.Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "high", Position: 10},
			{ID: "low", Position: 1},
			{ID: "mod-role", Position: 5},
		},
	}
}

func TestResolveCustom(t *testing.T) {
	cmds := []store.Command{
		{Name: "greet", Body: "global greeting"},
		{Name: "greet", Body: "guild greeting", GuildID: "g1"},
		{Name: "other", Body: "other", GuildID: "g2"},
	}

	t.Run("guild match wins over global", func(t *testing.T) {
		c, ok := ResolveCustom(cmds, "greet", "g1")
		require.True(t, ok)
		assert.Equal(t, "guild greeting", c.Body)
	})

	t.Run("falls back to global", func(t *testing.T) {
		c, ok := ResolveCustom(cmds, "greet", "g9")
		require.True(t, ok)
		assert.Equal(t, "global greeting", c.Body)
	})

	t.Run("foreign guild scope does not leak", func(t *testing.T) {
		_, ok := ResolveCustom(cmds, "other", "g1")
		assert.False(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := ResolveCustom(cmds, "missing", "g1")
		assert.False(t, ok)
	})
}

func TestBuildResponse(t *testing.T) {
	t.Run("plain text", func(t *testing.T) {
		data := buildResponse("hello there")
		assert.Equal(t, "hello there", data.Content)
	})

	t.Run("structured body", func(t *testing.T) {
		data := buildResponse(`{"content": "rich reply"}`)
		assert.Equal(t, "rich reply", data.Content)
	})

	t.Run("structured body with embeds", func(t *testing.T) {
		data := buildResponse(`{"embeds": [{"title": "Hi"}]}`)
		require.Len(t, data.Embeds, 1)
		assert.Equal(t, "Hi", data.Embeds[0].Title)
	})

	t.Run("invalid json falls back to text", func(t *testing.T) {
		data := buildResponse("{not json")
		assert.Equal(t, "{not json", data.Content)
	})

	t.Run("empty object falls back to text", func(t *testing.T) {
		data := buildResponse("{}")
		assert.Equal(t, "{}", data.Content)
	})
}

func TestRouteCustomCommand(t *testing.T) {
	r, st := newTestRouter(t)
	require.NoError(t, st.UpsertCommand(context.Background(), store.Command{Name: "greet", Body: "hello!"}))

	p := newFakePlatform()
	r.route(context.Background(), p, nil, nil, invocation("greet", "g1", plainMember("u1")), 0)

	require.Len(t, p.responses, 1)
	assert.Equal(t, "hello!", p.responses[0].Data.Content)
	assert.Zero(t, p.responses[0].Data.Flags&discordgo.MessageFlagsEphemeral)
}

func TestRouteCustomCommandRequiredRole(t *testing.T) {
	r, st := newTestRouter(t)
	require.NoError(t, st.UpsertCommand(context.Background(), store.Command{
		Name: "vip", Body: "welcome", RequiredRoleID: "vip-role",
	}))

	t.Run("missing role is denied privately", func(t *testing.T) {
		p := newFakePlatform()
		r.route(context.Background(), p, nil, nil, invocation("vip", "g1", plainMember("u1")), 0)

		require.Len(t, p.responses, 1)
		assert.Equal(t, missingRoleReply, p.responses[0].Data.Content)
		assert.NotZero(t, p.responses[0].Data.Flags&discordgo.MessageFlagsEphemeral)
	})

	t.Run("holder passes", func(t *testing.T) {
		p := newFakePlatform()
		r.route(context.Background(), p, nil, nil, invocation("vip", "g1", plainMember("u1", "vip-role")), 0)

		require.Len(t, p.responses, 1)
		assert.Equal(t, "welcome", p.responses[0].Data.Content)
	})
}

func TestRouteUnknownCommand(t *testing.T) {
	r, _ := newTestRouter(t)
	p := newFakePlatform()

	r.route(context.Background(), p, nil, nil, invocation("nothere", "g1", plainMember("u1")), 0)

	require.Len(t, p.responses, 1)
	assert.Equal(t, unknownReply, p.responses[0].Data.Content)
	assert.NotZero(t, p.responses[0].Data.Flags&discordgo.MessageFlagsEphemeral)
}

func TestRoutePingEmbed(t *testing.T) {
	r, _ := newTestRouter(t)
	p := newFakePlatform()

	r.route(context.Background(), p, nil, nil, invocation("ping", "g1", plainMember("u1")), 0)

	require.Len(t, p.responses, 1)
	require.Len(t, p.responses[0].Data.Embeds, 1)
	assert.Contains(t, p.responses[0].Data.Embeds[0].Fields[0].Value, "42ms")
}

func TestRouteStatusEmbed(t *testing.T) {
	r, _ := newTestRouter(t)
	p := newFakePlatform()

	r.route(context.Background(), p, nil, nil, invocation("status", "g1", plainMember("u1")), 3)

	require.Len(t, p.responses, 1)
	embed := p.responses[0].Data.Embeds[0]
	assert.Equal(t, "`READY`", embed.Fields[0].Value)
	assert.Equal(t, "`3`", embed.Fields[2].Value)
}

func TestRouteKickDeniedWithoutPermission(t *testing.T) {
	r, _ := newTestRouter(t)
	p := newFakePlatform()

	r.route(context.Background(), p, testGuild(), nil, invocation("kick", "g1", plainMember("u1",
		"low"), &discordgo.ApplicationCommandInteractionDataOption{
		Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "target",
	}), 0)

	require.Len(t, p.responses, 1)
	assert.Equal(t, deniedReply, p.responses[0].Data.Content)
	assert.Empty(t, p.kicked)
}

func TestRouteKickWithModRole(t *testing.T) {
	r, st := newTestRouter(t)
	require.NoError(t, st.SetGuildConfig(context.Background(), "g1", store.GuildConfig{
		Roles: store.RoleSets{Mod: []string{"mod-role"}},
	}))

	guild := testGuild()
	bot := &discordgo.Member{
		User:  &discordgo.User{ID: "bot"},
		Roles: []string{"high"},
	}
	p := newFakePlatform()
	p.members["target"] = &discordgo.Member{
		User:  &discordgo.User{ID: "target", Username: "troll", Discriminator: "0"},
		Roles: []string{"low"},
	}

	r.route(context.Background(), p, guild, bot, invocation("kick", "g1", plainMember("u1", "mod-role"),
		&discordgo.ApplicationCommandInteractionDataOption{
			Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "target",
		},
		&discordgo.ApplicationCommandInteractionDataOption{
			Name: "reason", Type: discordgo.ApplicationCommandOptionString, Value: "spam",
		}), 0)

	require.Len(t, p.responses, 1)
	assert.Equal(t, "Kicked troll", p.responses[0].Data.Content)
	assert.Equal(t, []string{"target"}, p.kicked)
}

func TestRouteKickBlockedByHierarchy(t *testing.T) {
	r, st := newTestRouter(t)
	require.NoError(t, st.SetGuildConfig(context.Background(), "g1", store.GuildConfig{
		Roles: store.RoleSets{Mod: []string{"mod-role"}},
	}))

	guild := testGuild()
	bot := &discordgo.Member{
		User:  &discordgo.User{ID: "bot"},
		Roles: []string{"low"},
	}
	p := newFakePlatform()
	p.members["target"] = &discordgo.Member{
		User:  &discordgo.User{ID: "target", Username: "untouchable", Discriminator: "0"},
		Roles: []string{"high"},
	}

	r.route(context.Background(), p, guild, bot, invocation("kick", "g1", plainMember("u1", "mod-role"),
		&discordgo.ApplicationCommandInteractionDataOption{
			Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "target",
		}), 0)

	require.Len(t, p.responses, 1)
	assert.Equal(t, cannotActionReply, p.responses[0].Data.Content)
	assert.Empty(t, p.kicked)
}

func TestRouteModerationOutsideGuild(t *testing.T) {
	r, _ := newTestRouter(t)
	p := newFakePlatform()

	r.route(context.Background(), p, nil, nil, invocation("kick", "", nil), 0)

	require.Len(t, p.responses, 1)
	assert.Equal(t, noGuildReply, p.responses[0].Data.Content)
}

func TestReplyFailureFallsBackToPrivateError(t *testing.T) {
	r, st := newTestRouter(t)
	require.NoError(t, st.UpsertCommand(context.Background(), store.Command{Name: "broken", Body: "body"}))

	p := newFakePlatform()
	p.failReplies = 1
	r.route(context.Background(), p, nil, nil, invocation("broken", "g1", plainMember("u1")), 0)

	require.Len(t, p.responses, 1)
	assert.Contains(t, p.responses[0].Data.Content, "Error:")
	assert.NotZero(t, p.responses[0].Data.Flags&discordgo.MessageFlagsEphemeral)
}

func TestHelpEmbedListsScopes(t *testing.T) {
	r, st := newTestRouter(t)
	require.NoError(t, st.UpsertCommand(context.Background(), store.Command{Name: "global-cmd", Body: "g"}))
	require.NoError(t, st.UpsertCommand(context.Background(), store.Command{Name: "local-cmd", Body: "l", GuildID: "g1"}))

	embed := r.helpEmbed("g1")
	require.Len(t, embed.Fields, 3)
	assert.Contains(t, embed.Fields[0].Value, "/ping")
	assert.Contains(t, embed.Fields[1].Value, "/global-cmd")
	assert.Contains(t, embed.Fields[2].Value, "/local-cmd")
}
