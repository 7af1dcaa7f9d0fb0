// ABOUTME: Tests for the moderation dispatcher
// ABOUTME: Covers eligibility gating, duration fallback, DM flow, and audit entries

package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanidev/guildgate/internal/discord"
	"github.com/vanidev/guildgate/internal/events"
	"github.com/vanidev/guildgate/internal/store"
)

type fakeClient struct {
	kicked       []string
	banned       []string
	timedOut     map[string]time.Time
	dmChannels   []string
	sentMessages map[string]string
	rolesAdded   map[string]string
	rolesRemoved map[string]string

	failKick error
	failDM   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		timedOut:     map[string]time.Time{},
		sentMessages: map[string]string{},
		rolesAdded:   map[string]string{},
		rolesRemoved: map[string]string{},
	}
}

func (f *fakeClient) GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error {
	if f.failKick != nil {
		return f.failKick
	}
	f.kicked = append(f.kicked, userID)
	return nil
}

func (f *fakeClient) GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error {
	f.banned = append(f.banned, userID)
	return nil
}

func (f *fakeClient) GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error {
	f.timedOut[userID] = *until
	return nil
}

func (f *fakeClient) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.failDM != nil {
		return nil, f.failDM
	}
	f.dmChannels = append(f.dmChannels, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeClient) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sentMessages[channelID] = content
	return &discordgo.Message{}, nil
}

func (f *fakeClient) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	f.rolesAdded[userID] = roleID
	return nil
}

func (f *fakeClient) GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	f.rolesRemoved[userID] = roleID
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir()+"/test.db", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewDispatcher(st, events.NewBus(nil), nil), st
}

func eligibleMember() discord.Member {
	return discord.Member{
		ID:          "user-1",
		Tag:         "target#1234",
		Moderatable: true,
		Kickable:    true,
		Bannable:    true,
	}
}

func TestDispatchKick(t *testing.T) {
	d, st := newTestDispatcher(t)
	client := newFakeClient()

	msg, err := d.Dispatch(context.Background(), client, "g1", eligibleMember(), ActionKick, Options{Reason: "spam"})
	require.NoError(t, err)
	assert.Equal(t, "Kicked target#1234", msg)
	assert.Equal(t, []string{"user-1"}, client.kicked)

	logs := st.AuditLog()
	require.Len(t, logs, 1)
	assert.Equal(t, store.AuditModeration, logs[0].Category)
	assert.Equal(t, store.SeveritySuccess, logs[0].Severity)
}

func TestDispatchKickBlockedByHierarchy(t *testing.T) {
	d, st := newTestDispatcher(t)
	client := newFakeClient()

	target := eligibleMember()
	target.Kickable = false

	_, err := d.Dispatch(context.Background(), client, "g1", target, ActionKick, Options{})
	require.ErrorIs(t, err, ErrHierarchy)
	assert.Empty(t, client.kicked)
	assert.Empty(t, st.AuditLog(), "precondition failures are not audited")
}

func TestDispatchBan(t *testing.T) {
	d, _ := newTestDispatcher(t)
	client := newFakeClient()

	msg, err := d.Dispatch(context.Background(), client, "g1", eligibleMember(), ActionBan, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Banned target#1234", msg)
	assert.Equal(t, []string{"user-1"}, client.banned)
}

func TestDispatchBanBlockedByHierarchy(t *testing.T) {
	d, _ := newTestDispatcher(t)
	target := eligibleMember()
	target.Bannable = false

	_, err := d.Dispatch(context.Background(), newFakeClient(), "g1", target, ActionBan, Options{})
	require.ErrorIs(t, err, ErrHierarchy)
}

func TestDispatchTimeout(t *testing.T) {
	d, _ := newTestDispatcher(t)
	client := newFakeClient()

	before := time.Now()
	msg, err := d.Dispatch(context.Background(), client, "g1", eligibleMember(), ActionTimeout, Options{Duration: "300"})
	require.NoError(t, err)
	assert.Equal(t, "Timed out target#1234 for 300s", msg)

	until, ok := client.timedOut["user-1"]
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(300*time.Second), until, 5*time.Second)
}

func TestDispatchTimeoutDurationFallback(t *testing.T) {
	d, _ := newTestDispatcher(t)

	for _, tc := range []struct {
		name     string
		duration string
	}{
		{"empty", ""},
		{"garbage", "soon"},
		{"negative", "-5"},
		{"zero", "0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeClient()
			msg, err := d.Dispatch(context.Background(), client, "g1", eligibleMember(), ActionTimeout, Options{Duration: tc.duration})
			require.NoError(t, err)
			assert.Equal(t, "Timed out target#1234 for 60s", msg)
		})
	}
}

func TestDispatchTimeoutBlockedByHierarchy(t *testing.T) {
	d, _ := newTestDispatcher(t)
	target := eligibleMember()
	target.Moderatable = false

	_, err := d.Dispatch(context.Background(), newFakeClient(), "g1", target, ActionTimeout, Options{})
	require.ErrorIs(t, err, ErrHierarchy)
}

func TestDispatchDM(t *testing.T) {
	d, _ := newTestDispatcher(t)
	client := newFakeClient()

	msg, err := d.Dispatch(context.Background(), client, "g1", eligibleMember(), ActionDM, Options{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Sent DM to target#1234", msg)
	assert.Equal(t, "hello", client.sentMessages["dm-user-1"])
}

func TestDispatchDMRequiresMessage(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), newFakeClient(), "g1", eligibleMember(), ActionDM, Options{})
	require.ErrorIs(t, err, ErrMissingMessage)
}

func TestDispatchRoleChanges(t *testing.T) {
	d, _ := newTestDispatcher(t)
	client := newFakeClient()

	msg, err := d.Dispatch(context.Background(), client, "g1", eligibleMember(), ActionAddRole, Options{RoleID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "Added role to target#1234", msg)
	assert.Equal(t, "r1", client.rolesAdded["user-1"])

	msg, err = d.Dispatch(context.Background(), client, "g1", eligibleMember(), ActionRemoveRole, Options{RoleID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "Removed role from target#1234", msg)
	assert.Equal(t, "r1", client.rolesRemoved["user-1"])
}

func TestDispatchRoleChangeRequiresRole(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), newFakeClient(), "g1", eligibleMember(), ActionAddRole, Options{})
	require.Error(t, err)
}

func TestDispatchPlatformFailureAudited(t *testing.T) {
	d, st := newTestDispatcher(t)
	client := newFakeClient()
	client.failKick = errors.New("missing permissions")

	_, err := d.Dispatch(context.Background(), client, "g1", eligibleMember(), ActionKick, Options{})
	require.Error(t, err)

	logs := st.AuditLog()
	require.Len(t, logs, 1)
	assert.Equal(t, store.SeverityError, logs[0].Severity)
	assert.Contains(t, logs[0].Message, "missing permissions")
}

func TestDispatchUnknownAction(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), newFakeClient(), "g1", eligibleMember(), Action("launch"), Options{})
	require.ErrorIs(t, err, ErrUnknownAction)
}
