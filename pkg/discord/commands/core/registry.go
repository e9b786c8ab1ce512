package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/log"
)

// CommandRouter routes interactions to registered handlers.
type CommandRouter struct {
	registry        *CommandRegistry
	contextBuilder  *ContextBuilder
	responder       *Responder
	permChecker     *PermissionChecker
	autocompleteMap map[string]AutocompleteHandler
	components      map[string]ComponentHandler
	baseCtx         context.Context
	logger          *slog.Logger
}

// NewCommandRouter creates a router answering through api.
func NewCommandRouter(p platform.Platform, api InteractionAPI, configManager *files.ConfigManager) *CommandRouter {
	responder := NewResponder(api)
	permChecker := NewPermissionChecker(p, configManager)
	return &CommandRouter{
		registry:        NewCommandRegistry(),
		contextBuilder:  NewContextBuilder(p, responder, configManager, permChecker),
		responder:       responder,
		permChecker:     permChecker,
		autocompleteMap: make(map[string]AutocompleteHandler),
		components:      make(map[string]ComponentHandler),
		baseCtx:         context.Background(),
		logger:          log.ApplicationLogger().With("component", "command_router"),
	}
}

// WithContext sets the parent context of every handler invocation.
func (cr *CommandRouter) WithContext(ctx context.Context) *CommandRouter {
	cr.baseCtx = ctx
	return cr
}

// RegisterCommand registers a command
func (cr *CommandRouter) RegisterCommand(cmd Command) {
	cr.registry.Register(cmd)
}

// RegisterAutocomplete registers an autocomplete handler
func (cr *CommandRouter) RegisterAutocomplete(commandName string, handler AutocompleteHandler) {
	cr.autocompleteMap[commandName] = handler
}

// RegisterComponent routes components whose custom ID starts with prefix to handler.
func (cr *CommandRouter) RegisterComponent(prefix string, handler ComponentHandler) {
	cr.components[prefix] = handler
}

// HandleInteraction is the discordgo InteractionCreate handler.
func (cr *CommandRouter) HandleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	cr.Dispatch(i)
}

// Dispatch routes one interaction.
func (cr *CommandRouter) Dispatch(i *discordgo.InteractionCreate) {
	switch {
	case IsAutocompleteInteraction(i):
		cr.handleAutocomplete(i)
	case IsSlashCommandInteraction(i):
		cr.handleSlashCommand(i)
	case IsComponentInteraction(i):
		cr.handleComponent(i)
	}
}

func (cr *CommandRouter) handleSlashCommand(i *discordgo.InteractionCreate) {
	ctx := cr.contextBuilder.BuildContext(cr.baseCtx, i)
	commandName := i.ApplicationCommandData().Name
	logger := ctx.Logger.With("command", GetCommandPath(i))

	cmd, exists := cr.registry.GetCommand(commandName)
	if !exists {
		logger.Error("Command not found")
		_ = cr.responder.Error(i, "Command not found")
		return
	}

	if cmd.RequiresGuild() && ctx.GuildID == "" {
		logger.Warn("Command used outside of guild")
		_ = cr.responder.Error(i, "This command can only be used in a server")
		return
	}

	if cmd.RequiresPermissions() && !cr.permChecker.HasPermission(ctx.Ctx, ctx.GuildID, ctx.UserID) {
		logger.Warn("User without permission tried to use command")
		_ = cr.responder.Error(i, "You do not have permission to use this command")
		return
	}

	logger.Info("Executing command")
	if err := cmd.Handle(ctx); err != nil {
		cr.respondError(logger, i, err)
	}
}

func (cr *CommandRouter) handleComponent(i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	var handler ComponentHandler
	best := 0
	for prefix, h := range cr.components {
		if strings.HasPrefix(customID, prefix) && len(prefix) > best {
			handler, best = h, len(prefix)
		}
	}
	if handler == nil {
		cr.logger.Debug("No handler for component", "customID", customID)
		return
	}
	ctx := cr.contextBuilder.BuildContext(cr.baseCtx, i)
	if err := handler.HandleComponent(ctx); err != nil {
		cr.respondError(ctx.Logger.With("customID", customID), i, err)
	}
}

func (cr *CommandRouter) respondError(logger *slog.Logger, i *discordgo.InteractionCreate, err error) {
	logger.Error("Command execution failed", "error", err)

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		_ = cr.responder.Error(i, fmt.Sprintf("Invalid option `%s`: %s", valErr.Field, valErr.Message))
		return
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.Ephemeral {
			_ = cr.responder.Ephemeral(i, cmdErr.Message)
		} else {
			_ = cr.responder.Respond(i, cmdErr.Message, false)
		}
		return
	}
	_ = cr.responder.Error(i, "An error occurred while executing the command")
}

func (cr *CommandRouter) handleAutocomplete(i *discordgo.InteractionCreate) {
	ctx := cr.contextBuilder.BuildContext(cr.baseCtx, i)
	commandName := i.ApplicationCommandData().Name

	handler, exists := cr.autocompleteMap[commandName]
	if !exists {
		_ = cr.responder.Autocomplete(i, []*discordgo.ApplicationCommandOptionChoice{})
		return
	}

	focusedOpt, hasFocus := HasFocusedOption(i.ApplicationCommandData().Options)
	if !hasFocus {
		_ = cr.responder.Autocomplete(i, []*discordgo.ApplicationCommandOptionChoice{})
		return
	}

	choices, err := handler.HandleAutocomplete(ctx, focusedOpt.Name)
	if err != nil {
		ctx.Logger.Error("Autocomplete handler failed", "error", err)
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}

	_ = cr.responder.Autocomplete(i, choices)
}

// Responder returns the router's responder.
func (cr *CommandRouter) Responder() *Responder {
	return cr.responder
}

// PermissionChecker returns the router's permission checker.
func (cr *CommandRouter) PermissionChecker() *PermissionChecker {
	return cr.permChecker
}

// Commands returns the registered commands.
func (cr *CommandRouter) Commands() map[string]Command {
	return cr.registry.GetAllCommands()
}

// CommandAPI is the part of *discordgo.Session used to synchronise application commands.
type CommandAPI interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandEdit(appID, guildID, cmdID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
}

// SyncResult summarises a command synchronisation.
type SyncResult struct {
	Created, Updated, Deleted, Unchanged int
}

// CommandManager keeps the application commands registered on Discord in line with the router.
type CommandManager struct {
	api    CommandAPI
	router *CommandRouter
	logger *slog.Logger
}

// NewCommandManager creates a command manager
func NewCommandManager(api CommandAPI, router *CommandRouter) *CommandManager {
	return &CommandManager{
		api:    api,
		router: router,
		logger: log.ApplicationLogger().With("component", "command_manager"),
	}
}

// SyncCommands creates, updates and removes commands incrementally. An empty guildID targets global commands.
func (cm *CommandManager) SyncCommands(appID, guildID string) (SyncResult, error) {
	var res SyncResult
	if appID == "" {
		return res, fmt.Errorf("application id is empty")
	}

	registered, err := cm.api.ApplicationCommands(appID, guildID)
	if err != nil {
		return res, fmt.Errorf("failed to fetch registered commands: %w", err)
	}

	regByName := make(map[string]*discordgo.ApplicationCommand, len(registered))
	for _, rc := range registered {
		regByName[rc.Name] = rc
	}

	codeCommands := cm.router.Commands()
	for name, cmd := range codeCommands {
		desired := &discordgo.ApplicationCommand{
			Name:        cmd.Name(),
			Description: cmd.Description(),
			Options:     cmd.Options(),
		}

		if existing, ok := regByName[name]; ok {
			if CompareCommands(existing, desired) {
				cm.logger.Debug("Command unchanged, skipping", "command", name)
				res.Unchanged++
				continue
			}
			if _, err := cm.api.ApplicationCommandEdit(appID, guildID, existing.ID, desired); err != nil {
				return res, fmt.Errorf("error updating command '%s': %w", name, err)
			}
			cm.logger.Info("Command updated", "command", name)
			res.Updated++
			continue
		}

		if _, err := cm.api.ApplicationCommandCreate(appID, guildID, desired); err != nil {
			return res, fmt.Errorf("error creating command '%s': %w", name, err)
		}
		cm.logger.Info("Command created", "command", name)
		res.Created++
	}

	for _, rc := range registered {
		if _, exists := codeCommands[rc.Name]; exists {
			continue
		}
		if err := cm.api.ApplicationCommandDelete(appID, guildID, rc.ID); err != nil {
			cm.logger.Warn("Error removing orphan command", "command", rc.Name, "error", err)
			continue
		}
		cm.logger.Info("Orphan command removed", "command", rc.Name)
		res.Deleted++
	}

	cm.logger.Info("Command synchronization completed",
		"created", res.Created, "updated", res.Updated, "deleted", res.Deleted, "unchanged", res.Unchanged,
		"total", len(codeCommands), "guildID", guildID)
	return res, nil
}

// GroupCommand is a command made of subcommands
type GroupCommand struct {
	name        string
	description string
	subcommands map[string]SubCommand
	order       []string
	checker     *PermissionChecker
}

// NewGroupCommand creates a new group command
func NewGroupCommand(name, description string, checker *PermissionChecker) *GroupCommand {
	return &GroupCommand{
		name:        name,
		description: description,
		subcommands: make(map[string]SubCommand),
		checker:     checker,
	}
}

// AddSubCommand adds a subcommand to the group
func (gc *GroupCommand) AddSubCommand(subcmd SubCommand) {
	if _, exists := gc.subcommands[subcmd.Name()]; !exists {
		gc.order = append(gc.order, subcmd.Name())
	}
	gc.subcommands[subcmd.Name()] = subcmd
}

func (gc *GroupCommand) Name() string        { return gc.name }
func (gc *GroupCommand) Description() string { return gc.description }

// Options lists the subcommands in registration order so synchronisation stays stable.
func (gc *GroupCommand) Options() []*discordgo.ApplicationCommandOption {
	options := make([]*discordgo.ApplicationCommandOption, 0, len(gc.order))
	for _, name := range gc.order {
		subcmd := gc.subcommands[name]
		options = append(options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        subcmd.Name(),
			Description: subcmd.Description(),
			Options:     subcmd.Options(),
		})
	}
	return options
}

func (gc *GroupCommand) RequiresGuild() bool {
	for _, subcmd := range gc.subcommands {
		if subcmd.RequiresGuild() {
			return true
		}
	}
	return false
}

// RequiresPermissions is false; each subcommand is checked individually in Handle.
func (gc *GroupCommand) RequiresPermissions() bool {
	return false
}

// Handle routes to the selected subcommand
func (gc *GroupCommand) Handle(ctx *Context) error {
	subCommandName := GetSubCommandName(ctx.Interaction)
	if subCommandName == "" {
		return NewCommandError("No subcommand specified", true)
	}

	subcmd, exists := gc.subcommands[subCommandName]
	if !exists {
		return NewCommandError("Unknown subcommand", true)
	}

	if subcmd.RequiresGuild() && ctx.GuildID == "" {
		return NewCommandError("This subcommand can only be used in a server", true)
	}

	if subcmd.RequiresPermissions() && !gc.checker.HasPermission(ctx.Ctx, ctx.GuildID, ctx.UserID) {
		return NewCommandError("You don't have permission to use this subcommand", true)
	}

	return subcmd.Handle(ctx)
}

// SimpleCommand implements Command with a function
type SimpleCommand struct {
	name                string
	description         string
	options             []*discordgo.ApplicationCommandOption
	handler             func(ctx *Context) error
	requiresGuild       bool
	requiresPermissions bool
}

// NewSimpleCommand creates a simple command
func NewSimpleCommand(
	name, description string,
	options []*discordgo.ApplicationCommandOption,
	handler func(ctx *Context) error,
	requiresGuild, requiresPermissions bool,
) *SimpleCommand {
	return &SimpleCommand{
		name:                name,
		description:         description,
		options:             options,
		handler:             handler,
		requiresGuild:       requiresGuild,
		requiresPermissions: requiresPermissions,
	}
}

func (sc *SimpleCommand) Name() string        { return sc.name }
func (sc *SimpleCommand) Description() string { return sc.description }
func (sc *SimpleCommand) Options() []*discordgo.ApplicationCommandOption {
	return sc.options
}
func (sc *SimpleCommand) Handle(ctx *Context) error { return sc.handler(ctx) }
func (sc *SimpleCommand) RequiresGuild() bool       { return sc.requiresGuild }
func (sc *SimpleCommand) RequiresPermissions() bool { return sc.requiresPermissions }
