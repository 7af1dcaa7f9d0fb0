// ABOUTME: Gateway event handlers translating Discord events into state,
// ABOUTME: audit entries, stored direct messages, and bus notifications

package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/vanidev/guildgate/internal/discord"
	"github.com/vanidev/guildgate/internal/events"
	"github.com/vanidev/guildgate/internal/store"
)

func (m *Manager) registerHandlers(s *discordgo.Session) {
	s.AddHandler(m.handleReady)
	s.AddHandler(m.handleDisconnect)
	s.AddHandler(m.handleResumed)
	s.AddHandler(m.handleGuildCreate)
	s.AddHandler(m.handleGuildDelete)
	s.AddHandler(m.handleGuildMemberAdd)
	s.AddHandler(m.handleGuildMemberRemove)
	s.AddHandler(m.handleMessageCreate)
	s.AddHandler(m.handleInteractionCreate)
}

func (m *Manager) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	if !m.owns(s) {
		return
	}
	m.setState(StateReady)

	tag := ""
	if r.User != nil {
		tag = r.User.String()
	}
	m.logger.Info("gateway ready", "user", tag, "guilds", len(r.Guilds))
	m.audit(context.Background(), store.AuditSystem, fmt.Sprintf("Bot logged in as %s", tag), store.SeveritySuccess)

	if m.cfg.Presence.Status != "" || len(m.cfg.Presence.Activities) > 0 {
		if err := s.UpdateStatusComplex(m.cfg.Presence); err != nil {
			m.logger.Warn("setting presence", "error", err)
		}
	}

	if m.onConnect != nil {
		go m.onConnect(context.Background(), s)
	}
}

func (m *Manager) handleDisconnect(s *discordgo.Session, d *discordgo.Disconnect) {
	if !m.owns(s) {
		return
	}
	m.setState(StateReconnecting)
	m.logger.Warn("gateway disconnected, reconnecting")
	m.audit(context.Background(), store.AuditSystem, "Bot disconnected from the gateway", store.SeverityError)
}

func (m *Manager) handleResumed(s *discordgo.Session, r *discordgo.Resumed) {
	if !m.owns(s) {
		return
	}
	m.setState(StateReady)
	m.logger.Info("gateway session resumed")
}

func (m *Manager) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	m.audit(context.Background(), store.AuditSystem, fmt.Sprintf("Joined guild %s", g.Name), store.SeveritySuccess)
	m.bus.Publish(events.Notification{Category: events.CategoryGuilds})
}

func (m *Manager) handleGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	name := g.Name
	if name == "" && g.BeforeDelete != nil {
		name = g.BeforeDelete.Name
	}
	if name == "" {
		name = g.ID
	}
	m.audit(context.Background(), store.AuditSystem, fmt.Sprintf("Removed from guild %s", name), store.SeveritySuccess)
	m.bus.Publish(events.Notification{Category: events.CategoryGuilds})
}

func (m *Manager) handleGuildMemberAdd(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.User == nil {
		return
	}
	m.audit(context.Background(), store.AuditSystem, fmt.Sprintf("%s joined a guild", e.User.String()), store.SeveritySuccess)
	m.bus.Publish(events.Notification{Category: events.CategoryMembers, GuildID: e.GuildID})
}

func (m *Manager) handleGuildMemberRemove(s *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.User == nil {
		return
	}
	m.audit(context.Background(), store.AuditSystem, fmt.Sprintf("%s left a guild", e.User.String()), store.SeveritySuccess)
	m.bus.Publish(events.Notification{Category: events.CategoryMembers, GuildID: e.GuildID})
}

// handleMessageCreate captures direct messages to the bot. Guild messages
// and the bot's own messages are ignored.
func (m *Manager) handleMessageCreate(s *discordgo.Session, e *discordgo.MessageCreate) {
	if e.GuildID != "" || e.Author == nil || e.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && e.Author.ID == s.State.User.ID {
		return
	}

	var attachments []string
	for _, a := range e.Attachments {
		attachments = append(attachments, a.URL)
	}

	msg := store.InboundMessage{
		ID:          e.ID,
		Content:     e.Content,
		Attachments: attachments,
		Author: store.Author{
			ID:       e.Author.ID,
			Username: e.Author.Username,
			Tag:      e.Author.String(),
			Avatar:   discord.AvatarURL(e.Author),
		},
	}
	if err := m.store.AppendMessage(context.Background(), msg); err != nil {
		m.logger.Error("storing direct message", "error", err)
		return
	}
	m.logger.Info("direct message received", "author", msg.Author.Tag)
	m.bus.Publish(events.Notification{Category: events.CategoryMessages})
}

func (m *Manager) handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if m.onInteraction != nil {
		m.onInteraction(s, i)
	}
}
