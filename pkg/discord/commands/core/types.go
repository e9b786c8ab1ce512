package core

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
)

// Command is a top-level slash command.
type Command interface {
	Name() string
	Description() string
	Options() []*discordgo.ApplicationCommandOption
	Handle(ctx *Context) error
	RequiresGuild() bool
	RequiresPermissions() bool
}

// SubCommand is a subcommand inside a GroupCommand.
type SubCommand interface {
	Name() string
	Description() string
	Options() []*discordgo.ApplicationCommandOption
	Handle(ctx *Context) error
	RequiresGuild() bool
	RequiresPermissions() bool
}

// ComponentHandler handles message component interactions whose custom ID starts with a registered prefix.
type ComponentHandler interface {
	HandleComponent(ctx *Context) error
}

// AutocompleteHandler answers autocomplete requests for a command.
type AutocompleteHandler interface {
	HandleAutocomplete(ctx *Context, focusedOption string) ([]*discordgo.ApplicationCommandOptionChoice, error)
}

// Context carries everything a handler needs for one interaction.
type Context struct {
	Ctx         context.Context
	Interaction *discordgo.InteractionCreate
	Platform    platform.Platform
	Responder   *Responder
	Config      *files.ConfigManager
	Logger      *slog.Logger
	GuildID     string
	ChannelID   string
	UserID      string
	UserName    string
	IsOwner     bool
	GuildConfig *files.GuildConfig
}

// CommandRegistry holds registered commands by name.
type CommandRegistry struct {
	commands map[string]Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]Command)}
}

// Register adds or replaces a command.
func (r *CommandRegistry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

func (r *CommandRegistry) GetCommand(name string) (Command, bool) {
	cmd, exists := r.commands[name]
	return cmd, exists
}

func (r *CommandRegistry) GetAllCommands() map[string]Command {
	return r.commands
}

// CommandError is an error whose message is shown to the user.
type CommandError struct {
	Message   string
	Ephemeral bool
}

func (e *CommandError) Error() string {
	return e.Message
}

// NewCommandError creates a user-facing command error.
func NewCommandError(message string, ephemeral bool) *CommandError {
	return &CommandError{
		Message:   message,
		Ephemeral: ephemeral,
	}
}
