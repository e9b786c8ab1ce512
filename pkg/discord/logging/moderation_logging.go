package logging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
)

// ErrAuditChannelUnavailable is returned when a guild has no usable audit channel.
var ErrAuditChannelUnavailable = errors.New("audit log channel unavailable")

// GuildSettings resolves per-guild configuration.
type GuildSettings interface {
	GuildConfig(guildID string) *files.GuildConfig
}

// PermissionChecker is implemented by platforms that can report the bot's channel permissions.
type PermissionChecker interface {
	ChannelPermissions(ctx context.Context, channelID string) (int64, error)
}

const auditChannelPerms = int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks)

// ResolveAuditChannel validates and returns the configured audit log channel of a guild.
func ResolveAuditChannel(ctx context.Context, dir platform.Directory, guilds GuildSettings, guildID string) (string, error) {
	if guilds == nil {
		return "", ErrAuditChannelUnavailable
	}
	gcfg := guilds.GuildConfig(guildID)
	if gcfg == nil {
		return "", fmt.Errorf("guild %s: %w", guildID, ErrAuditChannelUnavailable)
	}
	channelID := strings.TrimSpace(gcfg.AuditLogChannelID)
	if channelID == "" {
		return "", fmt.Errorf("guild %s has no audit channel: %w", guildID, ErrAuditChannelUnavailable)
	}
	if err := validateAuditChannel(ctx, dir, guildID, channelID); err != nil {
		return "", fmt.Errorf("audit channel %s: %w: %w", channelID, ErrAuditChannelUnavailable, err)
	}
	return channelID, nil
}

func validateAuditChannel(ctx context.Context, dir platform.Directory, guildID, channelID string) error {
	if dir == nil {
		return fmt.Errorf("directory is nil")
	}
	ch, err := dir.Channel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("channel lookup failed: %w", err)
	}
	if ch == nil {
		return fmt.Errorf("channel not found")
	}
	if ch.GuildID != "" && ch.GuildID != guildID {
		return fmt.Errorf("channel guild mismatch")
	}
	if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews {
		return fmt.Errorf("channel is not a guild text channel")
	}

	pc, ok := dir.(PermissionChecker)
	if !ok {
		return nil
	}
	perms, err := pc.ChannelPermissions(ctx, channelID)
	if err != nil {
		return fmt.Errorf("permission check failed: %w", err)
	}
	if perms&auditChannelPerms != auditChannelPerms {
		return fmt.Errorf("missing permissions (need view/send/embed)")
	}
	return nil
}
