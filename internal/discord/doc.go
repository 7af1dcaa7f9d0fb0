// Package discord is the platform capability layer over discordgo. It owns
// session construction and converts live gateway state into plain snapshot
// values (guilds, roles, members with eligibility flags) so the rest of the
// control plane never passes live platform objects around.
package discord
