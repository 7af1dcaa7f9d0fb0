// ABOUTME: The immutable built-in slash command set
// ABOUTME: Built-ins are always registered and can never be created, edited, or deleted remotely

package commands

import (
	"github.com/bwmarrin/discordgo"
)

var (
	kickMembersPerm     = int64(discordgo.PermissionKickMembers)
	banMembersPerm      = int64(discordgo.PermissionBanMembers)
	moderateMembersPerm = int64(discordgo.PermissionModerateMembers)
	manageRolesPerm     = int64(discordgo.PermissionManageRoles)
)

// builtins is the hard-coded command set. Order is the order shown in
// command listings.
var builtins = []*discordgo.ApplicationCommand{
	{
		Name:        "ping",
		Description: "Check the bot's latency.",
	},
	{
		Name:        "status",
		Description: "Show current system statistics.",
	},
	{
		Name:        "help",
		Description: "List all available commands.",
	},
	{
		Name:                     "kick",
		Description:              "Kick a member from the server.",
		DefaultMemberPermissions: &kickMembersPerm,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "The member to kick", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for the kick"},
		},
	},
	{
		Name:                     "ban",
		Description:              "Ban a member from the server.",
		DefaultMemberPermissions: &banMembersPerm,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "The member to ban", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for the ban"},
		},
	},
	{
		Name:                     "timeout",
		Description:              "Time a member out for a given duration.",
		DefaultMemberPermissions: &moderateMembersPerm,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "The member to time out", Required: true},
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "duration", Description: "Duration in minutes", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for the timeout"},
		},
	},
	{
		Name:                     "addrole",
		Description:              "Assign a role to a member.",
		DefaultMemberPermissions: &manageRolesPerm,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "The target member", Required: true},
			{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "The role to assign", Required: true},
		},
	},
	{
		Name:                     "removerole",
		Description:              "Remove a role from a member.",
		DefaultMemberPermissions: &manageRolesPerm,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "The target member", Required: true},
			{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "The role to remove", Required: true},
		},
	},
}

// Builtins returns the built-in application command set.
func Builtins() []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, len(builtins))
	copy(out, builtins)
	return out
}

// IsBuiltin reports whether the name is reserved by a built-in command.
func IsBuiltin(name string) bool {
	for _, c := range builtins {
		if c.Name == name {
			return true
		}
	}
	return false
}
