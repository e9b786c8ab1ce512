package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord implements Platform over a live *discordgo.Session.
type Discord struct {
	s *discordgo.Session
}

var _ Platform = (*Discord)(nil)

// NewDiscord wraps session.
func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{s: session}
}

// Session exposes the wrapped session.
func (d *Discord) Session() *discordgo.Session { return d.s }

func opts(ctx context.Context, reason string) []discordgo.RequestOption {
	o := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if reason != "" {
		o = append(o, discordgo.WithAuditLogReason(truncateReason(reason)))
	}
	return o
}

// Audit log reasons are capped at 512 characters.
func truncateReason(reason string) string {
	r := []rune(reason)
	if len(r) > 512 {
		return string(r[:512])
	}
	return reason
}

func (d *Discord) SendText(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	m, err := d.s.ChannelMessageSend(channelID, content, opts(ctx, "")...)
	return m, Wrap("send message", err)
}

func (d *Discord) SendComplex(ctx context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	m, err := d.s.ChannelMessageSendComplex(channelID, msg, opts(ctx, "")...)
	return m, Wrap("send message", err)
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return Wrap("delete message", d.s.ChannelMessageDelete(channelID, messageID, opts(ctx, "")...))
}

// BulkDelete removes up to 100 recent messages in one call.
func (d *Discord) BulkDelete(ctx context.Context, channelID string, messageIDs []string) error {
	return Wrap("bulk delete messages", d.s.ChannelMessagesBulkDelete(channelID, messageIDs, opts(ctx, "")...))
}

func (d *Discord) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return Wrap("add reaction", d.s.MessageReactionAdd(channelID, messageID, emoji, opts(ctx, "")...))
}

func (d *Discord) Ban(ctx context.Context, guildID, userID, reason string, deleteDays int) error {
	if deleteDays < 0 {
		deleteDays = 0
	}
	if deleteDays > 7 {
		deleteDays = 7
	}
	return Wrap("ban", d.s.GuildBanCreateWithReason(guildID, userID, truncateReason(reason), deleteDays, opts(ctx, "")...))
}

func (d *Discord) Kick(ctx context.Context, guildID, userID, reason string) error {
	return Wrap("kick", d.s.GuildMemberDeleteWithReason(guildID, userID, truncateReason(reason), opts(ctx, "")...))
}

// Timeout applies a communication timeout until the given instant.
// A zero instant or one past MaxTimeout is clamped to MaxTimeout from now.
func (d *Discord) Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error {
	limit := time.Now().Add(MaxTimeout)
	if until.IsZero() || until.After(limit) {
		until = limit
	}
	return Wrap("timeout", d.s.GuildMemberTimeout(guildID, userID, &until, opts(ctx, reason)...))
}

func (d *Discord) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return Wrap("add role", d.s.GuildMemberRoleAdd(guildID, userID, roleID, opts(ctx, reason)...))
}

func (d *Discord) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return Wrap("remove role", d.s.GuildMemberRoleRemove(guildID, userID, roleID, opts(ctx, reason)...))
}

func (d *Discord) DirectMessage(ctx context.Context, userID string, msg *discordgo.MessageSend) error {
	ch, err := d.s.UserChannelCreate(userID, opts(ctx, "")...)
	if err != nil {
		return Wrap("open dm channel", err)
	}
	_, err = d.s.ChannelMessageSendComplex(ch.ID, msg, opts(ctx, "")...)
	return Wrap("send dm", err)
}

func (d *Discord) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if d.s.State != nil {
		if ch, err := d.s.State.Channel(channelID); err == nil && ch != nil {
			return ch, nil
		}
	}
	ch, err := d.s.Channel(channelID, opts(ctx, "")...)
	return ch, Wrap("fetch channel", err)
}

func (d *Discord) GuildName(ctx context.Context, guildID string) (string, error) {
	if d.s.State != nil {
		if g, err := d.s.State.Guild(guildID); err == nil && g != nil && g.Name != "" {
			return g.Name, nil
		}
	}
	g, err := d.s.Guild(guildID, opts(ctx, "")...)
	if err != nil {
		return "", Wrap("fetch guild", err)
	}
	return g.Name, nil
}

// GuildOwnerID returns the user ID of the guild owner.
func (d *Discord) GuildOwnerID(ctx context.Context, guildID string) (string, error) {
	if d.s.State != nil {
		if g, err := d.s.State.Guild(guildID); err == nil && g != nil && g.OwnerID != "" {
			return g.OwnerID, nil
		}
	}
	g, err := d.s.Guild(guildID, opts(ctx, "")...)
	if err != nil {
		return "", Wrap("fetch guild", err)
	}
	return g.OwnerID, nil
}

func (d *Discord) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if d.s.State != nil {
		if m, err := d.s.State.Member(guildID, userID); err == nil && m != nil {
			return m, nil
		}
	}
	m, err := d.s.GuildMember(guildID, userID, opts(ctx, "")...)
	return m, Wrap("fetch member", err)
}

func (d *Discord) Members(ctx context.Context, guildID, after string, limit int) ([]*discordgo.Member, error) {
	ms, err := d.s.GuildMembers(guildID, after, limit, opts(ctx, "")...)
	return ms, Wrap("list members", err)
}

func (d *Discord) GuildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	if d.s.State != nil {
		if g, err := d.s.State.Guild(guildID); err == nil && g != nil && len(g.Roles) > 0 {
			return g.Roles, nil
		}
	}
	roles, err := d.s.GuildRoles(guildID, opts(ctx, "")...)
	return roles, Wrap("list roles", err)
}

func (d *Discord) BotUserID() string {
	if d.s == nil || d.s.State == nil || d.s.State.User == nil {
		return ""
	}
	return d.s.State.User.ID
}

// ChannelPermissions returns the bot's effective permissions in a channel.
func (d *Discord) ChannelPermissions(ctx context.Context, channelID string) (int64, error) {
	botID := d.BotUserID()
	if botID == "" {
		return 0, fmt.Errorf("bot user unknown")
	}
	perms, err := d.s.UserChannelPermissions(botID, channelID, opts(ctx, "")...)
	return perms, Wrap("channel permissions", err)
}
