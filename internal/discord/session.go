// ABOUTME: Discord session construction with the gateway intents the control plane needs
// ABOUTME: Keeps intent and state configuration in one place

package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// NewSession builds an unopened Discord session for the given bot token.
// Intents cover guilds, members, guild messages, and direct messages; the
// member intent is privileged and must be enabled for the application.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	s.StateEnabled = true
	return s, nil
}
