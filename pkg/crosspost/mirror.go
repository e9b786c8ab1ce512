package crosspost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/log"
	"github.com/small-frappuccino/modwarden/pkg/task"
)

// TaskMirror is the task type dispatched for each announcement.
const TaskMirror = "crosspost.mirror"

// Mirror targets, also used as metric labels.
const (
	TargetGuilded = "guilded"
	TargetRoblox  = "roblox"
)

const (
	reactionOK     = "✅"
	reactionFailed = "❌"

	mirrorAttempts = 3
)

// Settings resolves guild configuration.
type Settings interface {
	GuildConfig(guildID string) *files.GuildConfig
}

// Dispatcher is the subset of *task.TaskRouter the mirror needs.
type Dispatcher interface {
	RegisterHandler(taskType string, handler task.TaskHandler)
	Dispatch(ctx context.Context, t task.Task) error
}

// Recorder receives per-target results.
type Recorder interface {
	RecordCrosspost(target string, ok bool)
}

// GuildedPoster posts to a Guilded channel.
type GuildedPoster interface {
	Configured() bool
	PostMessage(ctx context.Context, channelID string, msg GuildedMessage) error
}

// RobloxPoster posts to a Roblox group.
type RobloxPoster interface {
	Configured() bool
	PostShout(ctx context.Context, groupID, message string) error
	PostWall(ctx context.Context, groupID, message string) error
}

// MirrorConfig wires a Mirror. Guilded, Roblox and Metrics may be nil.
type MirrorConfig struct {
	Messenger  platform.Messenger
	Settings   Settings
	Dispatcher Dispatcher
	Guilded    GuildedPoster
	Roblox     RobloxPoster
	Metrics    Recorder
	BotID      func() string
}

// Mirror copies messages from each guild's updates channel to the
// configured Guilded channel and Roblox group.
type Mirror struct {
	messenger  platform.Messenger
	settings   Settings
	dispatcher Dispatcher
	guilded    GuildedPoster
	roblox     RobloxPoster
	metrics    Recorder
	botID      func() string
	logger     *slog.Logger
}

// job is the task payload. It is shared across retries so targets that
// already succeeded are not posted twice.
type job struct {
	guildID   string
	channelID string
	messageID string
	cfg       files.CrosspostConfig
	guilded   GuildedMessage
	roblox    string

	mu   sync.Mutex
	done map[string]bool
}

// NewMirror creates a Mirror. Call RegisterHandlers before dispatching.
func NewMirror(cfg MirrorConfig) *Mirror {
	botID := cfg.BotID
	if botID == nil {
		botID = func() string { return "" }
	}
	return &Mirror{
		messenger:  cfg.Messenger,
		settings:   cfg.Settings,
		dispatcher: cfg.Dispatcher,
		guilded:    cfg.Guilded,
		roblox:     cfg.Roblox,
		metrics:    cfg.Metrics,
		botID:      botID,
		logger:     log.ApplicationLogger().With("component", "crosspost"),
	}
}

// RegisterHandlers binds the mirror task handler on the dispatcher.
func (m *Mirror) RegisterHandlers() {
	m.dispatcher.RegisterHandler(TaskMirror, m.handleMirror)
}

// HandleMessageCreate is the discordgo MessageCreate handler.
func (m *Mirror) HandleMessageCreate(_ *discordgo.Session, mc *discordgo.MessageCreate) {
	if mc == nil {
		return
	}
	if _, err := m.Enqueue(context.Background(), mc.Message); err != nil && !errors.Is(err, task.ErrDuplicateTask) {
		m.logger.Error("Failed to enqueue announcement mirror", "messageID", mc.ID, "error", err)
	}
}

// Enqueue schedules msg for mirroring when it was posted in its guild's
// updates channel by someone other than the bot. It reports whether a task
// was dispatched. The Discord message ID is the idempotency key.
func (m *Mirror) Enqueue(ctx context.Context, msg *discordgo.Message) (bool, error) {
	if msg == nil || msg.Author == nil || msg.GuildID == "" || m.settings == nil {
		return false, nil
	}
	if msg.Author.ID == m.botID() {
		return false, nil
	}
	gc := m.settings.GuildConfig(msg.GuildID)
	if gc == nil || !gc.Crosspost.Enabled() || msg.ChannelID != gc.Crosspost.UpdatesChannelID {
		return false, nil
	}
	if len(m.targets(gc.Crosspost)) == 0 {
		m.logger.Debug("Announcement not mirrored: no client configured", "guildID", msg.GuildID)
		return false, nil
	}

	author := platform.DisplayName(msg.Author)
	if msg.Member != nil && msg.Member.Nick != "" {
		author = msg.Member.Nick
	}
	j := &job{
		guildID:   msg.GuildID,
		channelID: msg.ChannelID,
		messageID: msg.ID,
		cfg:       gc.Crosspost,
		guilded:   BuildGuildedMessage(msg, author),
		roblox:    robloxText(msg),
		done:      make(map[string]bool),
	}

	m.logger.Info("Cross-posting announcement", "guildID", msg.GuildID, "messageID", msg.ID)
	err := m.dispatcher.Dispatch(ctx, task.Task{
		Type:    TaskMirror,
		Payload: j,
		Options: task.TaskOptions{
			GroupKey:       "crosspost:" + msg.GuildID,
			IdempotencyKey: "crosspost:" + msg.ID,
			MaxAttempts:    mirrorAttempts,
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Mirror) handleMirror(ctx context.Context, payload any) error {
	j, ok := payload.(*job)
	if !ok || j == nil {
		return fmt.Errorf("crosspost: unexpected payload %T", payload)
	}

	attempt, maxAttempts := task.Attempt(ctx)

	var errs []error
	for _, target := range m.targets(j.cfg) {
		if j.isDone(target) {
			continue
		}
		err := m.post(ctx, target, j)
		if m.metrics != nil {
			m.metrics.RecordCrosspost(target, err == nil)
		}
		if err != nil {
			m.logger.Warn("Cross-post failed", "target", target, "guildID", j.guildID, "messageID", j.messageID, "attempt", attempt, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
			continue
		}
		j.markDone(target)
		m.logger.Info("Cross-post delivered", "target", target, "messageID", j.messageID)
	}

	if len(errs) == 0 {
		m.react(ctx, j, reactionOK)
		return nil
	}
	if attempt >= maxAttempts {
		m.react(ctx, j, reactionFailed)
	}
	return errors.Join(errs...)
}

func (m *Mirror) targets(cfg files.CrosspostConfig) []string {
	var out []string
	if cfg.GuildedChannelID != "" && m.guilded != nil && m.guilded.Configured() {
		out = append(out, TargetGuilded)
	}
	if cfg.RobloxGroupID != "" && m.roblox != nil && m.roblox.Configured() {
		out = append(out, TargetRoblox)
	}
	return out
}

func (m *Mirror) post(ctx context.Context, target string, j *job) error {
	switch target {
	case TargetGuilded:
		return m.guilded.PostMessage(ctx, j.cfg.GuildedChannelID, j.guilded)
	case TargetRoblox:
		if j.roblox == "" {
			return nil
		}
		if err := m.roblox.PostShout(ctx, j.cfg.RobloxGroupID, j.roblox); err != nil {
			return err
		}
		if j.cfg.PostToGroupWall {
			return m.roblox.PostWall(ctx, j.cfg.RobloxGroupID, j.roblox)
		}
		return nil
	default:
		return fmt.Errorf("unknown target %q", target)
	}
}

func (m *Mirror) react(ctx context.Context, j *job, emoji string) {
	if m.messenger == nil {
		return
	}
	if err := m.messenger.AddReaction(ctx, j.channelID, j.messageID, emoji); err != nil {
		m.logger.Debug("Could not react to announcement", "messageID", j.messageID, "error", err)
	}
}

func (j *job) isDone(target string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done[target]
}

func (j *job) markDone(target string) {
	j.mu.Lock()
	j.done[target] = true
	j.mu.Unlock()
}

// robloxText renders the plain-text form of an announcement. Messages with
// no content fall back to their first embed.
func robloxText(msg *discordgo.Message) string {
	content := msg.Content
	title := ""
	if len(msg.Embeds) > 0 && msg.Embeds[0] != nil {
		title = msg.Embeds[0].Title
		if strings.TrimSpace(content) == "" {
			content = msg.Embeds[0].Description
		}
	}
	return FormatForRoblox(content, title)
}
