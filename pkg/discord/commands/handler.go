package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/collector"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands/core"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/log"
	"github.com/small-frappuccino/modwarden/pkg/moderation"
)

// Module contributes slash commands to the router.
type Module interface {
	RegisterCommands(router *core.CommandRouter)
}

// CommandHandler is the main handler that coordinates all bot commands
type CommandHandler struct {
	router         *core.CommandRouter
	commandManager *core.CommandManager
}

// NewCommandHandler creates a new CommandHandler instance
func NewCommandHandler(router *core.CommandRouter, api core.CommandAPI) *CommandHandler {
	return &CommandHandler{
		router:         router,
		commandManager: core.NewCommandManager(api, router),
	}
}

// SetupCommands registers every module and synchronises the global commands.
func (ch *CommandHandler) SetupCommands(appID string, modules ...Module) error {
	log.ApplicationLogger().Info("Setting up bot commands...")

	for _, m := range modules {
		m.RegisterCommands(ch.router)
	}

	if _, err := ch.commandManager.SyncCommands(appID, ""); err != nil {
		return fmt.Errorf("failed to setup commands: %w", err)
	}

	log.ApplicationLogger().Info("Bot commands setup completed successfully")
	return nil
}

// Router exposes the interaction router.
func (ch *CommandHandler) Router() *core.CommandRouter {
	return ch.router
}

// Runner starts a prefix-command workflow.
type Runner interface {
	Run(ctx context.Context, kind moderation.Kind, inv moderation.Invocation) moderation.Report
}

// RuntimeSource provides the current runtime settings.
type RuntimeSource interface {
	Runtime() files.RuntimeConfig
}

// MessageRouter routes MessageCreate events: replies awaited by a running
// workflow go to the collector, prefix commands start a new workflow.
type MessageRouter struct {
	collector *collector.Collector
	runner    Runner
	settings  RuntimeSource
	botID     func() string
	ctx       context.Context
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewMessageRouter creates a router. Workflows inherit ctx and stop when it is cancelled.
func NewMessageRouter(ctx context.Context, c *collector.Collector, runner Runner, settings RuntimeSource, botID func() string) *MessageRouter {
	if botID == nil {
		botID = func() string { return "" }
	}
	return &MessageRouter{
		collector: c,
		runner:    runner,
		settings:  settings,
		botID:     botID,
		ctx:       ctx,
		logger:    log.DiscordLogger().With("component", "message_router"),
	}
}

// HandleMessageCreate is the discordgo MessageCreate handler.
func (mr *MessageRouter) HandleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil {
		return
	}
	mr.Route(m.Message)
}

// Route handles one message. It reports whether the message was consumed.
func (mr *MessageRouter) Route(m *discordgo.Message) bool {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == mr.botID() {
		return false
	}
	if mr.collector.Dispatch(m) {
		return true
	}
	if m.GuildID == "" {
		return false
	}

	kind, ok := mr.parseCommand(m.Content)
	if !ok {
		return false
	}

	msg := moderation.FromDiscord(m, m.GuildID)
	inv := moderation.Invocation{
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		IssuerID:   m.Author.ID,
		IssuerName: msg.AuthorName(),
		Command:    msg,
	}
	mr.logger.Info("Prefix command received", "command", string(kind), "guildID", m.GuildID, "userID", m.Author.ID)

	mr.wg.Add(1)
	go func() {
		defer mr.wg.Done()
		rep := mr.runner.Run(mr.ctx, kind, inv)
		if !rep.Done && rep.Abort != "" {
			mr.logger.Debug("Workflow aborted", "command", string(kind), "reason", string(rep.Abort))
		}
	}()
	return true
}

func (mr *MessageRouter) parseCommand(content string) (moderation.Kind, bool) {
	prefix := files.DefaultCommandPrefix
	if mr.settings != nil {
		prefix = mr.settings.Runtime().WithDefaults().CommandPrefix
	}
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, prefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", false
	}
	return moderation.ParseKind(fields[0])
}

// Wait blocks until every started workflow has returned.
func (mr *MessageRouter) Wait() {
	mr.wg.Wait()
}
