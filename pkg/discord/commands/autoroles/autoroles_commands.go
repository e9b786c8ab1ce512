// Package autoroles exposes the role combination tools as slash commands and the panel button.
package autoroles

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands/core"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/roles"
)

const (
	optCombination = "name"
	maxChoices     = 25

	msgDisabled = "Automatic role management is disabled."
	msgCooldown = "⏰ **Cooldown Active**\nYou can check your roles again in %d seconds."
)

// RuntimeSource provides the current runtime settings.
type RuntimeSource interface {
	Runtime() files.RuntimeConfig
}

// Commands registers /checkroles, /rolecombo, /rolepanel and the panel button.
type Commands struct {
	manager   *roles.Manager
	cooldowns roles.Cooldowns
	settings  RuntimeSource
}

// NewCommands wires the commands. A nil cooldowns store falls back to memory.
func NewCommands(manager *roles.Manager, cooldowns roles.Cooldowns, settings RuntimeSource) *Commands {
	if cooldowns == nil {
		cooldowns = roles.NewMemoryCooldowns()
	}
	return &Commands{manager: manager, cooldowns: cooldowns, settings: settings}
}

func (c *Commands) cooldown() time.Duration {
	rt := files.RuntimeConfig{}
	if c.settings != nil {
		rt = c.settings.Runtime()
	}
	return rt.WithDefaults().RoleCheckCooldown.Std()
}

func (c *Commands) RegisterCommands(router *core.CommandRouter) {
	router.RegisterCommand(core.NewSimpleCommand("checkroles", "Check all members for role combinations and apply them", nil, c.handleCheckRoles, true, true))
	router.RegisterCommand(core.NewSimpleCommand("rolecombo", "Show current role combination configuration", []*discordgo.ApplicationCommandOption{
		{
			Type:         discordgo.ApplicationCommandOptionString,
			Name:         optCombination,
			Description:  "Show only this combination",
			Required:     false,
			Autocomplete: true,
		},
	}, c.handleRoleCombo, true, true))
	router.RegisterAutocomplete("rolecombo", c)
	router.RegisterCommand(core.NewSimpleCommand("rolepanel", "Send the self-service role check panel", []*discordgo.ApplicationCommandOption{
		{
			Type:         discordgo.ApplicationCommandOptionChannel,
			Name:         "channel",
			Description:  "Channel to send the panel to (defaults to this channel)",
			Required:     false,
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
		},
	}, c.handleRolePanel, true, true))
	router.RegisterComponent(roles.CheckButtonID, c)
}

func (c *Commands) handleCheckRoles(ctx *core.Context) error {
	if !c.manager.Enabled(ctx.GuildID) {
		return core.NewCommandError("❌ "+msgDisabled, true)
	}
	if err := ctx.Responder.Defer(ctx.Interaction, true); err != nil {
		return err
	}
	rep, err := c.manager.Sweep(ctx.Ctx, ctx.GuildID)
	if err != nil {
		ctx.Logger.Error("Role sweep failed", "error", err)
		return ctx.Responder.EditResponse(ctx.Interaction, "❌ Role check failed. See the bot logs for details.")
	}
	return ctx.Responder.EditResponseEmbed(ctx.Interaction, roles.SweepEmbed(rep))
}

func (c *Commands) handleRoleCombo(ctx *core.Context) error {
	combos := c.manager.Combinations(ctx.GuildID)
	if name := optionString(ctx.Interaction, optCombination); name != "" {
		i := slices.IndexFunc(combos, func(rc files.RoleCombination) bool { return strings.EqualFold(rc.Name, name) })
		if i < 0 {
			return core.NewCommandError(fmt.Sprintf("❌ No role combination named `%s`.", name), true)
		}
		combos = combos[i : i+1]
	}
	embed := roles.CombinationsEmbed(c.manager.Enabled(ctx.GuildID), combos)
	return ctx.Responder.Embed(ctx.Interaction, embed, nil, true)
}

// HandleAutocomplete suggests combination names containing the typed text.
func (c *Commands) HandleAutocomplete(ctx *core.Context, focused string) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	if focused != optCombination {
		return nil, nil
	}
	typed := strings.ToLower(optionString(ctx.Interaction, optCombination))
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, maxChoices)
	for _, rc := range c.manager.Combinations(ctx.GuildID) {
		if len(choices) == maxChoices {
			break
		}
		if typed == "" || strings.Contains(strings.ToLower(rc.Name), typed) {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: rc.Name, Value: rc.Name})
		}
	}
	return choices, nil
}

func optionString(i *discordgo.InteractionCreate, name string) string {
	return core.NewOptionExtractor(core.GetSubCommandOptions(i), nil).String(name)
}

func (c *Commands) handleRolePanel(ctx *core.Context) error {
	if !c.manager.Enabled(ctx.GuildID) {
		return core.NewCommandError("❌ "+msgDisabled, true)
	}
	data := ctx.Interaction.ApplicationCommandData()
	channelID := ctx.ChannelID
	for _, opt := range data.Options {
		if opt.Name == "channel" && opt.Type == discordgo.ApplicationCommandOptionChannel {
			if id, ok := opt.Value.(string); ok && id != "" {
				channelID = id
			}
		}
	}

	msg, err := ctx.Platform.SendComplex(ctx.Ctx, channelID, roles.PanelMessage(c.manager.Combinations(ctx.GuildID), c.cooldown()))
	if err != nil {
		if errors.Is(err, platform.ErrPermissionDenied) {
			return core.NewCommandError(fmt.Sprintf("❌ I don't have permission to send messages in <#%s>.", channelID), true)
		}
		return fmt.Errorf("send role panel: %w", err)
	}
	return ctx.Responder.Ephemeral(ctx.Interaction, fmt.Sprintf("✅ **Role check panel sent** to <#%s>.\n[Jump to Message](%s)",
		channelID, platform.JumpLink(ctx.GuildID, channelID, msg.ID)))
}

// HandleComponent answers the panel's "Check My Roles" button.
func (c *Commands) HandleComponent(ctx *core.Context) error {
	if err := ctx.Responder.Defer(ctx.Interaction, true); err != nil {
		return err
	}

	left, ok, err := c.cooldowns.Acquire(ctx.Ctx, ctx.GuildID+"/"+ctx.UserID, c.cooldown())
	if err != nil {
		ctx.Logger.Warn("Cooldown store unavailable", "error", err)
	} else if !ok {
		return ctx.Responder.EditResponse(ctx.Interaction, fmt.Sprintf(msgCooldown, int(left.Seconds()+0.5)))
	}

	if !c.manager.Enabled(ctx.GuildID) {
		return ctx.Responder.EditResponse(ctx.Interaction, "❌ "+msgDisabled)
	}
	member, err := ctx.Platform.Member(ctx.Ctx, ctx.GuildID, ctx.UserID)
	if err != nil {
		return ctx.Responder.EditResponse(ctx.Interaction, "❌ Unable to find your member data.")
	}

	res, err := c.manager.Apply(ctx.Ctx, ctx.GuildID, member, nil)
	if err != nil {
		ctx.Logger.Error("Role check failed", "error", err)
		return ctx.Responder.EditResponse(ctx.Interaction, "❌ An error occurred while checking your roles. Please try again later.")
	}
	lines, err := c.manager.Status(ctx.Ctx, ctx.GuildID, ctx.UserID)
	if err != nil {
		ctx.Logger.Warn("Role status unavailable", "error", err)
	}
	return ctx.Responder.EditResponseEmbed(ctx.Interaction, roles.CheckResultEmbed(res, lines))
}
