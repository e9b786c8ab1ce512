package platform

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// FindRoleByName returns the guild role whose name matches case-insensitively, or nil.
func FindRoleByName(ctx context.Context, dir Directory, guildID, name string) (*discordgo.Role, error) {
	roles, err := dir.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	for _, r := range roles {
		if r != nil && strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return nil, nil
}

// RoleNames maps role IDs to names using the guild role list. Unknown IDs are skipped.
func RoleNames(roles []*discordgo.Role, ids []string) []string {
	byID := make(map[string]string, len(roles))
	for _, r := range roles {
		if r != nil {
			byID[r.ID] = r.Name
		}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// MemberRoleNames resolves the role names held by a member.
func MemberRoleNames(ctx context.Context, dir Directory, guildID, userID string) ([]string, error) {
	m, err := dir.Member(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	roles, err := dir.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return RoleNames(roles, m.Roles), nil
}

// HasAnyRole reports whether held contains any of allowed, ignoring case.
func HasAnyRole(held, allowed []string) bool {
	for _, h := range held {
		if slices.ContainsFunc(allowed, func(a string) bool { return strings.EqualFold(a, h) }) {
			return true
		}
	}
	return false
}

// MemberHasRoleID reports whether m holds roleID.
func MemberHasRoleID(m *discordgo.Member, roleID string) bool {
	return m != nil && slices.Contains(m.Roles, roleID)
}

// DisplayName returns the best human label for a user.
func DisplayName(u *discordgo.User) string {
	if u == nil {
		return "unknown"
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// JumpLink builds the permalink of a guild message.
func JumpLink(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}
