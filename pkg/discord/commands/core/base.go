package core

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/log"
)

// ContextBuilder creates contexts for command execution
type ContextBuilder struct {
	platform      platform.Platform
	responder     *Responder
	configManager *files.ConfigManager
	checker       *PermissionChecker
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(p platform.Platform, responder *Responder, configManager *files.ConfigManager, checker *PermissionChecker) *ContextBuilder {
	return &ContextBuilder{
		platform:      p,
		responder:     responder,
		configManager: configManager,
		checker:       checker,
	}
}

// BuildContext creates a complete context for command execution
func (cb *ContextBuilder) BuildContext(ctx context.Context, i *discordgo.InteractionCreate) *Context {
	userID, userName := extractUser(i)
	guildID := i.GuildID

	var guildConfig *files.GuildConfig
	if guildID != "" && cb.configManager != nil {
		guildConfig = cb.configManager.GuildConfig(guildID)
	}

	return &Context{
		Ctx:         ctx,
		Interaction: i,
		Platform:    cb.platform,
		Responder:   cb.responder,
		Config:      cb.configManager,
		Logger:      log.ApplicationLogger().With("guildID", guildID, "userID", userID),
		GuildID:     guildID,
		ChannelID:   i.ChannelID,
		UserID:      userID,
		UserName:    userName,
		IsOwner:     guildID != "" && cb.checker.IsOwner(guildID, userID),
		GuildConfig: guildConfig,
	}
}

// extractUser extracts the invoking user from the interaction
func extractUser(i *discordgo.InteractionCreate) (string, string) {
	if i.Member != nil && i.Member.User != nil {
		name := i.Member.Nick
		if name == "" {
			name = platform.DisplayName(i.Member.User)
		}
		return i.Member.User.ID, name
	} else if i.User != nil {
		return i.User.ID, platform.DisplayName(i.User)
	}
	return "", ""
}

// GetSubCommandName extracts the subcommand name from the interaction
func GetSubCommandName(i *discordgo.InteractionCreate) string {
	options := i.ApplicationCommandData().Options
	if len(options) > 0 && options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return options[0].Name
	}
	return ""
}

// GetSubCommandOptions extracts the subcommand options from the interaction
func GetSubCommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	if len(options) > 0 && options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return options[0].Options
	}
	return options // Returns direct options if not a subcommand
}

// HasFocusedOption checks if there is a focused option (for autocomplete)
func HasFocusedOption(options []*discordgo.ApplicationCommandInteractionDataOption) (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	for _, opt := range options {
		if opt.Focused {
			return opt, true
		}
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand && len(opt.Options) > 0 {
			if focused, found := HasFocusedOption(opt.Options); found {
				return focused, true
			}
		}
	}
	return nil, false
}

// GetCommandPath returns the full command path (command + subcommand if present)
func GetCommandPath(i *discordgo.InteractionCreate) string {
	path := i.ApplicationCommandData().Name

	subCmd := GetSubCommandName(i)
	if subCmd != "" {
		path += " " + subCmd
	}

	return path
}

// IsAutocompleteInteraction checks if the interaction is for autocomplete
func IsAutocompleteInteraction(i *discordgo.InteractionCreate) bool {
	return i.Type == discordgo.InteractionApplicationCommandAutocomplete
}

// IsSlashCommandInteraction checks if the interaction is a slash command
func IsSlashCommandInteraction(i *discordgo.InteractionCreate) bool {
	return i.Type == discordgo.InteractionApplicationCommand
}

// IsComponentInteraction checks if the interaction comes from a button or select menu
func IsComponentInteraction(i *discordgo.InteractionCreate) bool {
	return i.Type == discordgo.InteractionMessageComponent
}
