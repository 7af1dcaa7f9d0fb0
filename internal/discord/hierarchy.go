// ABOUTME: Role-hierarchy eligibility checks for moderation targets
// ABOUTME: Computes moderatable/kickable/bannable the way the platform client libraries do

package discord

import (
	"github.com/bwmarrin/discordgo"
)

// highestRolePosition returns the position of the member's highest role.
// A member with no roles sits at the @everyone position (0).
func highestRolePosition(g *discordgo.Guild, m *discordgo.Member) int {
	byID := rolesByID(g)
	highest := 0
	for _, roleID := range m.Roles {
		if r, ok := byID[roleID]; ok && r.Position > highest {
			highest = r.Position
		}
	}
	return highest
}

// EligibilityFlags reports whether the bot can moderate, kick, and ban the
// target member. The guild owner and the bot itself are never eligible;
// otherwise the bot's highest role must sit strictly above the target's.
// The platform still enforces its own permission checks server-side, so a
// true flag is necessary but not sufficient.
func EligibilityFlags(g *discordgo.Guild, bot, target *discordgo.Member) (moderatable, kickable, bannable bool) {
	if g == nil || bot == nil || target == nil || target.User == nil {
		return false, false, false
	}
	if target.User.ID == g.OwnerID {
		return false, false, false
	}
	if bot.User != nil && target.User.ID == bot.User.ID {
		return false, false, false
	}
	if bot.User != nil && bot.User.ID == g.OwnerID {
		return true, true, true
	}
	above := highestRolePosition(g, bot) > highestRolePosition(g, target)
	return above, above, above
}
