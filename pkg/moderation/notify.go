package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/log"
	"github.com/small-frappuccino/modwarden/pkg/theme"
)

// Notifier tells the target of an action what happened, by direct message.
type Notifier struct {
	dm      platform.DirectMessenger
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
	metrics DMRecorder
}

// DMRecorder receives delivery results.
type DMRecorder interface {
	RecordDM(result string)
}

// NewNotifier returns a Notifier that retries a failed delivery once after backoff.
func NewNotifier(dm platform.DirectMessenger, backoff time.Duration) *Notifier {
	return &Notifier{dm: dm, backoff: backoff, sleep: sleepContext, logger: log.DiscordLogger()}
}

// WithMetrics attaches a delivery recorder.
func (n *Notifier) WithMetrics(r DMRecorder) *Notifier {
	n.metrics = r
	return n
}

// Notify reports whether the message was delivered. Closed DMs are not retried.
func (n *Notifier) Notify(ctx context.Context, req Request, guildName string) bool {
	if n == nil || n.dm == nil {
		return false
	}
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{NotificationEmbed(req, guildName)}}

	err := n.dm.DirectMessage(ctx, req.TargetID, msg)
	if err != nil && !platform.IsPermissionDenied(err) {
		n.logger.Debug("Retrying moderation DM", "userID", req.TargetID, "error", err)
		if serr := n.sleep(ctx, n.backoff); serr == nil {
			err = n.dm.DirectMessage(ctx, req.TargetID, msg)
		}
	}
	if err != nil {
		n.logger.Info("Could not DM moderated user", "userID", req.TargetID, "kind", string(req.Kind), "error", err)
		n.record("failed")
		return false
	}
	n.record("sent")
	return true
}

func (n *Notifier) record(result string) {
	if n.metrics != nil {
		n.metrics.RecordDM(result)
	}
}

// NotificationEmbed renders the DM sent to the target.
func NotificationEmbed(req Request, guildName string) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Server", Value: guildName, Inline: true},
		{Name: "Moderator", Value: req.IssuerName, Inline: true},
		{Name: "Reason", Value: req.Reason},
	}
	if d := req.DurationLabel(); d != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Duration", Value: d, Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("You have been %s", req.Kind.PastTense()),
		Color:     ColorFor(req.Kind),
		Fields:    fields,
		Timestamp: req.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ColorFor returns the theme color of an action kind.
func ColorFor(k Kind) int {
	switch k {
	case KindBan:
		return theme.Ban()
	case KindKick:
		return theme.Kick()
	case KindTimeout:
		return theme.Timeout()
	case KindTicketBlacklist:
		return theme.Blacklist()
	}
	return theme.Muted()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
