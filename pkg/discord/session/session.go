package session

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/errutil"
	"github.com/small-frappuccino/modwarden/pkg/log"
)

// Error messages
const (
	ErrSessionCreationFailed   = "failed to create Discord session: %w"
	ErrSessionConnectionFailed = "failed to connect to Discord: %w"
)

// Intents covers prefix commands (message content), member role changes and DMs.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages |
	discordgo.IntentMessageContent

var (
	newSession   = discordgo.New
	openSession  = func(s *discordgo.Session) error { return s.Open() }
	closeSession = func(s *discordgo.Session) error { return s.Close() }
)

// NewDiscordSession creates a session, runs each setup hook (handler
// registration) and opens the gateway connection.
func NewDiscordSession(token string, setup ...func(*discordgo.Session)) (*discordgo.Session, error) {
	if token == "" {
		log.ErrorLoggerRaw().Error("Discord bot token is empty; set DISCORD_BOT_TOKEN before starting the bot")
		return nil, fmt.Errorf("discord bot token is empty")
	}

	log.DiscordLogger().Info("🔑 Creating Discord session")

	var s *discordgo.Session
	if err := errutil.HandleDiscordError("create_session", func() error {
		var sessionErr error
		s, sessionErr = newSession("Bot " + token)
		return sessionErr
	}); err != nil {
		return nil, fmt.Errorf(ErrSessionCreationFailed, err)
	}

	s.Identify.Intents = Intents
	s.StateEnabled = true
	for _, fn := range setup {
		if fn != nil {
			fn(s)
		}
	}

	log.DiscordLogger().Info("🔗 Connecting to Discord...")
	if err := errutil.HandleDiscordError("connect", func() error { return openSession(s) }); err != nil {
		_ = closeSession(s)
		return nil, fmt.Errorf(ErrSessionConnectionFailed, err)
	}

	log.DiscordLogger().Info("✅ Connected to Discord successfully")
	return s, nil
}
