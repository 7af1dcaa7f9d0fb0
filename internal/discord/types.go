// ABOUTME: Snapshot types for guilds, roles, and members exposed to the dashboard layer
// ABOUTME: Converts live discordgo state into plain values with URL fallbacks

package discord

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
)

// defaultImageURL stands in when a user or guild has no uploaded image.
const defaultImageURL = "https://cdn.discordapp.com/embed/avatars/0.png"

// imageSize is the requested CDN image size for avatars and icons.
const imageSize = "1024"

// Role is a plain snapshot of a guild role.
type Role struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Guild is a plain snapshot of a guild the bot is a member of.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	MemberCount int    `json:"memberCount"`
	Roles       []Role `json:"roles"`
}

// Member is a plain snapshot of a guild member, including the eligibility
// flags the moderation dispatcher checks before acting.
type Member struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Tag         string    `json:"tag"`
	Avatar      string    `json:"avatar"`
	JoinedAt    time.Time `json:"joinedAt"`
	Roles       []Role    `json:"roles"`
	Moderatable bool      `json:"isModeratable"`
	Kickable    bool      `json:"isKickable"`
	Bannable    bool      `json:"isBannable"`
}

// AvatarURL returns the user's avatar URL, falling back to the platform
// default image for users without one.
func AvatarURL(u *discordgo.User) string {
	if u == nil {
		return defaultImageURL
	}
	if url := u.AvatarURL(imageSize); url != "" {
		return url
	}
	return defaultImageURL
}

// IconURL returns the guild's icon URL, falling back to the platform
// default image for guilds without one.
func IconURL(g *discordgo.Guild) string {
	if g == nil {
		return defaultImageURL
	}
	if url := g.IconURL(imageSize); url != "" {
		return url
	}
	return defaultImageURL
}

// roleColor formats a role color as a CSS hex string.
func roleColor(c int) string {
	return fmt.Sprintf("#%06x", c)
}

// GuildSnapshot converts a live guild into a Guild snapshot. Managed roles
// and @everyone are filtered out; remaining roles are sorted highest
// position first, the order role pickers display them in.
func GuildSnapshot(g *discordgo.Guild) Guild {
	roles := make([]*discordgo.Role, 0, len(g.Roles))
	for _, r := range g.Roles {
		if r.Managed || r.Name == "@everyone" {
			continue
		}
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Position > roles[j].Position })

	out := Guild{
		ID:          g.ID,
		Name:        g.Name,
		Icon:        IconURL(g),
		MemberCount: g.MemberCount,
		Roles:       make([]Role, 0, len(roles)),
	}
	for _, r := range roles {
		out.Roles = append(out.Roles, Role{ID: r.ID, Name: r.Name, Color: roleColor(r.Color)})
	}
	return out
}

// MemberSnapshot converts a live member into a Member snapshot. The guild
// and the bot's own member record are needed to compute eligibility flags.
func MemberSnapshot(g *discordgo.Guild, bot, m *discordgo.Member) Member {
	out := Member{
		ID:          m.User.ID,
		Username:    m.User.Username,
		DisplayName: displayName(m),
		Tag:         m.User.String(),
		Avatar:      AvatarURL(m.User),
		Roles:       make([]Role, 0, len(m.Roles)),
	}
	if m.JoinedAt != (time.Time{}) {
		out.JoinedAt = m.JoinedAt
	}
	byID := rolesByID(g)
	for _, roleID := range m.Roles {
		if r, ok := byID[roleID]; ok {
			out.Roles = append(out.Roles, Role{ID: r.ID, Name: r.Name, Color: roleColor(r.Color)})
		}
	}
	out.Moderatable, out.Kickable, out.Bannable = EligibilityFlags(g, bot, m)
	return out
}

// displayName prefers the guild nickname, then the global display name,
// then the username.
func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

func rolesByID(g *discordgo.Guild) map[string]*discordgo.Role {
	if g == nil {
		return nil
	}
	byID := make(map[string]*discordgo.Role, len(g.Roles))
	for _, r := range g.Roles {
		byID[r.ID] = r
	}
	return byID
}
