package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	goredis "github.com/redis/go-redis/v9"
	"github.com/small-frappuccino/modwarden/pkg/control"
	"github.com/small-frappuccino/modwarden/pkg/crosspost"
	"github.com/small-frappuccino/modwarden/pkg/discord/cleanup"
	"github.com/small-frappuccino/modwarden/pkg/discord/collector"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands/autoroles"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands/core"
	statscommands "github.com/small-frappuccino/modwarden/pkg/discord/commands/metrics"
	modcommands "github.com/small-frappuccino/modwarden/pkg/discord/commands/moderation"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands/roblox"
	"github.com/small-frappuccino/modwarden/pkg/discord/logging"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/discord/session"
	"github.com/small-frappuccino/modwarden/pkg/errutil"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/log"
	"github.com/small-frappuccino/modwarden/pkg/metrics"
	"github.com/small-frappuccino/modwarden/pkg/moderation"
	"github.com/small-frappuccino/modwarden/pkg/roles"
	"github.com/small-frappuccino/modwarden/pkg/storage"
	"github.com/small-frappuccino/modwarden/pkg/task"
	"github.com/small-frappuccino/modwarden/pkg/theme"
	"github.com/small-frappuccino/modwarden/pkg/util"
)

const (
	taskHeartbeat     = "app.heartbeat"
	heartbeatInterval = time.Minute
)

// Run bootstraps the bot and blocks until shutdown.
// appName affects config/data/log paths; tokenEnv is the environment variable containing the bot token.
// Environment: tokenEnv is read from the current process environment first; if empty,
// a fallback $HOME/.local/bin/.env file will be loaded and the variable re-checked.
func Run(appName, tokenEnv string) error {
	started := time.Now()

	// App name first (affects paths)
	util.SetAppName(appName)

	token, loadErr := util.LoadEnvWithLocalBinFallback(tokenEnv)

	// Logger first so subsequent steps can log meaningfully
	if err := log.SetupLogger(); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.GlobalLogger.Sync()
	if loadErr != nil {
		log.ApplicationLogger().Warn(fmt.Sprintf("Warning: %v", loadErr))
	}

	if name := util.EnvString("MODWARDEN_THEME", ""); name != "" {
		if err := theme.SetCurrent(name); err != nil {
			log.ApplicationLogger().Warn("Failed to set theme from MODWARDEN_THEME", "theme", name, "err", err)
		}
	}

	if err := errutil.InitializeGlobalErrorHandler(log.ErrorLoggerRaw()); err != nil {
		return fmt.Errorf("initialize global error handler: %w", err)
	}

	log.ApplicationLogger().Info(formatStartupMessage(appName, AppVersion()))

	if token == "" {
		return fmt.Errorf("%s not set in environment or .env file", tokenEnv)
	}

	if err := util.EnsureDataDirs(); err != nil {
		return fmt.Errorf("create data directories: %w", err)
	}

	configManager := files.NewConfigManager()
	if err := configManager.LoadConfig(); err != nil {
		log.ErrorLoggerRaw().Error(fmt.Sprintf("Failed to load settings file: %v", err))
	}
	rt := configManager.Runtime()

	store := storage.NewStore(util.GetCaseDBPath())
	if err := store.Init(); err != nil {
		return fmt.Errorf("initialize SQLite store: %w", err)
	}
	defer store.Close()
	logDowntime(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks := task.NewRouter(task.Defaults())
	defer tasks.Close()

	clients := newCrosspostClients(configManager)
	defer clients.close()

	var b *bot
	discordSession, err := session.NewDiscordSession(token, func(s *discordgo.Session) {
		b = newBot(ctx, s, botDeps{
			config:  configManager,
			store:   store,
			tasks:   tasks,
			clients: clients,
			runtime: rt,
		})
		b.register(s)
	})
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	defer discordSession.Close()
	if discordSession.State == nil || discordSession.State.User == nil {
		return fmt.Errorf("discord session state not properly initialized")
	}
	util.SetBotName(discordSession.State.User.Username)
	log.DiscordLogger().Info(fmt.Sprintf("✅ Authenticated as %s", discordSession.State.User.Username))

	// Heartbeat for downtime detection on the next start
	tasks.RegisterHandler(taskHeartbeat, func(context.Context, any) error {
		return store.SetHeartbeat(time.Now())
	})
	stopHeartbeat := tasks.ScheduleEvery(heartbeatInterval, task.Task{Type: taskHeartbeat})
	defer stopHeartbeat()

	// Commands
	commandHandler := commands.NewCommandHandler(b.router, discordSession)
	if err := commandHandler.SetupCommands(discordSession.State.User.ID, b.modules()...); err != nil {
		return fmt.Errorf("configure slash commands: %w", err)
	}
	log.ApplicationLogger().Info("🔗 Slash commands sync completed")

	controlServer := control.NewServer(util.EnvString("MODWARDEN_CONTROL_ADDR", ""), configManager, control.Options{
		Cases: store,
		Tasks: tasks,
	})
	if err := controlServer.Start(); err != nil {
		return err
	}

	log.ApplicationLogger().Info(fmt.Sprintf("🎯 %s initialized successfully in %s", appName, time.Since(started).Round(time.Millisecond)))
	log.ApplicationLogger().Info(fmt.Sprintf("🤖 %s running. Press Ctrl+C to stop...", appName))

	sig := util.WaitForInterrupt(ctx)
	log.ApplicationLogger().Info(fmt.Sprintf("🛑 Stopping %s...", appName), "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeoutCause(context.Background(), 30*time.Second, fmt.Errorf("application shutdown"))
	defer shutdownCancel()

	if err := controlServer.Stop(shutdownCtx); err != nil {
		log.ErrorLoggerRaw().Error(fmt.Sprintf("Control server failed to stop cleanly: %v", err))
	}

	// Running workflows observe ctx; wait for them before closing the store.
	cancel()
	b.wait()
	if err := store.SetHeartbeat(time.Now()); err != nil {
		log.DatabaseLogger().Warn("Failed to record final heartbeat", "err", err)
	}
	return nil
}

type botDeps struct {
	config  *files.ConfigManager
	store   *storage.Store
	tasks   *task.TaskRouter
	clients *crosspostClients
	runtime files.RuntimeConfig
}

// bot holds the components bound to the Discord session.
type bot struct {
	platform  *platform.Discord
	collector *collector.Collector
	cleaner   *cleanup.Scheduler
	executor  *moderation.Executor
	roles     *roles.Manager
	cooldowns roles.Cooldowns
	mirror    *crosspost.Mirror
	messages  *commands.MessageRouter
	router    *core.CommandRouter
	deps      botDeps
}

func newBot(ctx context.Context, s *discordgo.Session, deps botDeps) *bot {
	rec := metrics.Recorder{}
	p := platform.NewDiscord(s)
	coll := collector.New()
	cleaner := cleanup.NewScheduler(p)

	auditor := logging.NewAuditLogger(logging.AuditConfig{
		Platform: p,
		Guilds:   deps.config,
		Store:    deps.store,
		Backoff:  deps.runtime.LogRetryBackoff.Std(),
		Metrics:  rec,
	})
	executor := moderation.NewExecutor(moderation.Config{
		Platform: p,
		Waiter:   coll,
		Auditor:  auditor,
		Notifier: moderation.NewNotifier(p, deps.runtime.DMRetryBackoff.Std()).WithMetrics(rec),
		Cleaner:  cleaner,
		Guilds:   deps.config,
		Timing:   moderation.TimingFromRuntime(deps.runtime),
		Metrics:  rec,
	})

	var mirror *crosspost.Mirror
	if util.EnvBool("MODWARDEN_DISABLE_CROSSPOST") {
		log.ApplicationLogger().Info("Announcement mirroring disabled by MODWARDEN_DISABLE_CROSSPOST")
	} else {
		mirror = crosspost.NewMirror(crosspost.MirrorConfig{
			Messenger:  p,
			Settings:   deps.config,
			Dispatcher: deps.tasks,
			Guilded:    deps.clients.guilded,
			Roblox:     deps.clients.roblox,
			Metrics:    rec,
			BotID:      p.BotUserID,
		})
		mirror.RegisterHandlers()
	}

	return &bot{
		platform:  p,
		collector: coll,
		cleaner:   cleaner,
		executor:  executor,
		roles:     roles.NewManager(p, deps.config, deps.store, deps.runtime.RoleSweepPerSecond),
		cooldowns: newCooldowns(ctx),
		mirror:    mirror,
		messages:  commands.NewMessageRouter(ctx, coll, executor, deps.config, p.BotUserID),
		router:    core.NewCommandRouter(p, s, deps.config).WithContext(ctx),
		deps:      deps,
	}
}

// register binds the gateway handlers. It runs before the session opens.
func (b *bot) register(s *discordgo.Session) {
	s.AddHandler(b.messages.HandleMessageCreate)
	if b.mirror != nil {
		s.AddHandler(b.mirror.HandleMessageCreate)
	}
	s.AddHandler(b.router.HandleInteraction)
	s.AddHandler(b.roles.HandleMemberUpdate)
	s.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if g == nil || g.Guild == nil {
			return
		}
		if err := b.deps.config.RegisterGuild(s, g.ID); err != nil {
			log.ApplicationLogger().Warn("Failed to register guild", "guildID", g.ID, "err", err)
		}
	})
}

func (b *bot) modules() []commands.Module {
	return []commands.Module{
		modcommands.NewCommands(b.executor, b.collector, b.deps.config, b.deps.store),
		autoroles.NewCommands(b.roles, b.cooldowns, b.deps.config),
		roblox.NewCommands(b.deps.clients.openCloud),
		statscommands.NewCommands(b.deps.store, b.deps.tasks),
	}
}

func (b *bot) wait() {
	if b == nil {
		return
	}
	b.messages.Wait()
	b.cleaner.Wait()
}

// newCooldowns shares button cooldowns through Redis when REDIS_URL is set.
func newCooldowns(ctx context.Context) roles.Cooldowns {
	url := util.EnvString("REDIS_URL", "")
	if url == "" {
		return roles.NewMemoryCooldowns()
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		log.ApplicationLogger().Warn("Invalid REDIS_URL; using in-memory cooldowns", "err", err)
		return roles.NewMemoryCooldowns()
	}
	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.ApplicationLogger().Warn("Redis unreachable; using in-memory cooldowns", "err", err)
		_ = client.Close()
		return roles.NewMemoryCooldowns()
	}
	log.ApplicationLogger().Info("Using Redis for role check cooldowns", "addr", opts.Addr)
	return roles.NewRedisCooldowns(client, "")
}

type crosspostClients struct {
	guilded   *crosspost.GuildedClient
	roblox    *crosspost.RobloxClient
	openCloud *crosspost.OpenCloudClient
}

func newCrosspostClients(cfg *files.ConfigManager) *crosspostClients {
	timeout := util.EnvDuration("MODWARDEN_HTTP_TIMEOUT", 10*time.Second)
	perSecond := float64(util.EnvInt64("MODWARDEN_HTTP_RATE", 1))
	universe, topic := openCloudTarget(cfg)
	c := &crosspostClients{
		guilded: crosspost.NewGuildedClient(crosspost.GuildedConfig{
			Token:     util.EnvString("GUILDED_BOT_TOKEN", ""),
			Timeout:   timeout,
			PerSecond: perSecond,
		}),
		roblox: crosspost.NewRobloxClient(crosspost.RobloxConfig{
			Cookie:    util.EnvString("ROBLOX_COOKIE", ""),
			Timeout:   timeout,
			PerSecond: perSecond,
		}),
		openCloud: crosspost.NewOpenCloudClient(crosspost.OpenCloudConfig{
			APIKey:     util.EnvString("ROBLOX_API_KEY", ""),
			UniverseID: universe,
			Topic:      topic,
			Timeout:    timeout,
			PerSecond:  perSecond,
		}),
	}
	c.guilded.Open()
	c.roblox.Open()
	c.openCloud.Open()
	log.ApplicationLogger().Info("Cross-platform clients ready",
		"guilded", c.guilded.Configured(),
		"roblox", c.roblox.Configured(),
		"openCloud", c.openCloud.Configured(),
	)
	return c
}

func (c *crosspostClients) close() {
	c.guilded.Close()
	c.roblox.Close()
	c.openCloud.Close()
}

// openCloudTarget reads the ban topic from the environment, falling back to
// the first guild that configures one.
func openCloudTarget(cfg *files.ConfigManager) (universe, topic string) {
	universe = util.EnvString("ROBLOX_UNIVERSE_ID", "")
	topic = util.EnvString("ROBLOX_TOPIC", "")
	if universe != "" && topic != "" {
		return universe, topic
	}
	for _, id := range cfg.GuildIDs() {
		gc := cfg.GuildConfig(id)
		if gc == nil {
			continue
		}
		if universe == "" {
			universe = gc.Crosspost.RobloxUniverseID
		}
		if topic == "" {
			topic = gc.Crosspost.RobloxTopic
		}
	}
	return universe, topic
}

func logDowntime(store *storage.Store) {
	last, ok, err := store.GetHeartbeat()
	if err != nil {
		log.DatabaseLogger().Warn("Failed to read heartbeat", "err", err)
		return
	}
	if !ok {
		log.ApplicationLogger().Info("No previous heartbeat recorded")
		return
	}
	log.ApplicationLogger().Info("Previous run last seen", "at", last.Format(time.RFC3339), "downtime", time.Since(last).Round(time.Second).String())
}
