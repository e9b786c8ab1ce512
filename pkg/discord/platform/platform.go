// Package platform narrows the Discord REST surface used by the moderation
// workflows to a set of small interfaces and classifies API failures.
package platform

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// MaxTimeout is the longest communication timeout Discord accepts.
const MaxTimeout = 28 * 24 * time.Hour

// Messenger posts and removes channel messages.
type Messenger interface {
	SendText(ctx context.Context, channelID, content string) (*discordgo.Message, error)
	SendComplex(ctx context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// Moderator performs member-affecting actions.
type Moderator interface {
	Ban(ctx context.Context, guildID, userID, reason string, deleteDays int) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error
}

// DirectMessenger sends private messages.
type DirectMessenger interface {
	DirectMessage(ctx context.Context, userID string, msg *discordgo.MessageSend) error
}

// Directory resolves guild metadata.
type Directory interface {
	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	GuildName(ctx context.Context, guildID string) (string, error)
	Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	Members(ctx context.Context, guildID, after string, limit int) ([]*discordgo.Member, error)
	GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error)
	BotUserID() string
}

// Platform is everything the bot consumes from Discord.
type Platform interface {
	Messenger
	Moderator
	DirectMessenger
	Directory
}
