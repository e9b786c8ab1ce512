// Package roblox registers /robloxban, which bans a player from the linked
// Roblox experience through an Open Cloud messaging topic.
package roblox

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/crosspost"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands/core"
	"github.com/small-frappuccino/modwarden/pkg/theme"
)

const (
	optTarget   = "username_or_id"
	optReason   = "reason"
	optDuration = "duration"
)

// BanPublisher resolves players and publishes ban requests.
type BanPublisher interface {
	Configured() bool
	ResolveUserID(ctx context.Context, usernameOrID string) (int64, error)
	PublishBan(ctx context.Context, req crosspost.BanRequest) error
}

// Commands holds the Roblox moderation commands.
type Commands struct {
	bans BanPublisher
}

func NewCommands(bans BanPublisher) *Commands {
	return &Commands{bans: bans}
}

func (c *Commands) RegisterCommands(router *core.CommandRouter) {
	router.RegisterCommand(core.NewSimpleCommand("robloxban", "Ban a user from Roblox (supports Username or ID)", []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        optTarget,
			Description: "Roblox Username OR User ID",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        optReason,
			Description: "Reason for the ban (shown to user)",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        optDuration,
			Description: "Duration in seconds (-1 for permanent)",
			Required:    false,
		},
	}, c.handleBan, true, true))
}

func (c *Commands) handleBan(ctx *core.Context) error {
	if c.bans == nil || !c.bans.Configured() {
		return core.NewCommandError("❌ Roblox bans are not configured for this bot.", true)
	}

	data := ctx.Interaction.ApplicationCommandData()
	opts := core.NewOptionExtractor(data.Options, data.Resolved)
	target, err := opts.StringRequired(optTarget)
	if err != nil {
		return err
	}
	reason, err := opts.StringRequired(optReason)
	if err != nil {
		return err
	}
	duration := int64(crosspost.PermanentBan)
	if opts.HasOption(optDuration) {
		duration = opts.Int(optDuration)
	}
	if duration == 0 || duration < crosspost.PermanentBan {
		return &core.ValidationError{Field: optDuration, Message: "use -1 for permanent or a positive number of seconds"}
	}

	if err := ctx.Responder.Defer(ctx.Interaction, false); err != nil {
		return err
	}

	userID, err := c.bans.ResolveUserID(ctx.Ctx, target)
	if err != nil {
		ctx.Logger.Warn("Roblox user lookup failed", "target", target, "error", err)
		return ctx.Responder.EditResponse(ctx.Interaction, "❌ **Error:** "+lookupFailure(target, err))
	}

	ctx.Logger.Info("Sending Roblox ban request", "robloxUserID", userID, "target", target, "moderatorID", ctx.UserID)
	req := crosspost.BanRequest{UserID: userID, Reason: reason, Duration: duration}
	if err := c.bans.PublishBan(ctx.Ctx, req); err != nil {
		ctx.Logger.Error("Roblox ban request failed", "robloxUserID", userID, "error", err)
		return ctx.Responder.EditResponse(ctx.Interaction, "❌ **Failed:** "+publishFailure(err))
	}
	return ctx.Responder.EditResponseEmbed(ctx.Interaction, BanEmbed(target, req, ctx.UserName))
}

// BanEmbed confirms an accepted ban request.
func BanEmbed(target string, req crosspost.BanRequest, moderator string) *discordgo.MessageEmbed {
	duration := "Permanent"
	if req.Duration != crosspost.PermanentBan {
		duration = fmt.Sprintf("%ds", req.Duration)
	}
	label := target
	if id := strconv.FormatInt(req.UserID, 10); label != id {
		label = fmt.Sprintf("%s (ID: %s)", target, id)
	}
	return &discordgo.MessageEmbed{
		Title: "✅ Roblox Ban Initiated",
		Color: theme.Success(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Target User", Value: label, Inline: false},
			{Name: "Duration", Value: duration, Inline: true},
			{Name: "Reason", Value: req.Reason, Inline: false},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Admin: " + moderator},
	}
}

func lookupFailure(target string, err error) string {
	if errors.Is(err, crosspost.ErrUserNotFound) {
		return fmt.Sprintf("User '%s' not found on Roblox.", target)
	}
	if status := crosspost.StatusCode(err); status > 0 {
		return fmt.Sprintf("Roblox Users API failed (Status: %d)", status)
	}
	return "Roblox Users API is unreachable."
}

func publishFailure(err error) string {
	if status := crosspost.StatusCode(err); status > 0 {
		return fmt.Sprintf("API Error %d", status)
	}
	return "Roblox Open Cloud is unreachable."
}
