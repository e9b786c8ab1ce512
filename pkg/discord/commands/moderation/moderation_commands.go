package moderation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands/core"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
	modaction "github.com/small-frappuccino/modwarden/pkg/moderation"
	"github.com/small-frappuccino/modwarden/pkg/storage"
	"github.com/small-frappuccino/modwarden/pkg/theme"
)

const (
	msgEvidenceWindow = "📎 Send an image or link as evidence in this channel within %s."
	msgNoHistory      = "No moderation history for %s."
	historyLimit      = 10
)

// PreparedRunner executes a workflow whose fields came from slash options.
type PreparedRunner interface {
	RunPrepared(ctx context.Context, inv modaction.Invocation, p modaction.Prepared, rep modaction.Replier) modaction.Report
}

// CaseLister reads the moderation case ledger.
type CaseLister interface {
	ListCasesForUser(ctx context.Context, guildID, userID string, limit int) ([]storage.CaseRecord, error)
}

// RuntimeSource provides the current runtime settings.
type RuntimeSource interface {
	Runtime() files.RuntimeConfig
}

// Commands holds the slash moderation commands.
type Commands struct {
	runner   PreparedRunner
	waiter   modaction.Waiter
	settings RuntimeSource
	cases    CaseLister
}

// NewCommands wires the slash commands. cases may be nil, in which case /modhistory is not registered.
func NewCommands(runner PreparedRunner, waiter modaction.Waiter, settings RuntimeSource, cases CaseLister) *Commands {
	return &Commands{runner: runner, waiter: waiter, settings: settings, cases: cases}
}

// RegisterCommands registers /ban, /kick, /timeout, /ticketblacklist and /modhistory.
func (c *Commands) RegisterCommands(router *core.CommandRouter) {
	for _, kind := range modaction.Kinds {
		router.RegisterCommand(&actionCommand{kind: kind, parent: c})
	}
	if c.cases != nil {
		router.RegisterCommand(&historyCommand{cases: c.cases})
	}
}

func (c *Commands) evidenceWindow() time.Duration {
	rt := files.RuntimeConfig{}
	if c.settings != nil {
		rt = c.settings.Runtime()
	}
	return rt.WithDefaults().EvidenceWindow.Std()
}

type actionCommand struct {
	kind   modaction.Kind
	parent *Commands
}

func (a *actionCommand) Name() string { return string(a.kind) }

func (a *actionCommand) Description() string {
	switch a.kind {
	case modaction.KindBan:
		return "Ban a member from the server"
	case modaction.KindKick:
		return "Kick a member from the server"
	case modaction.KindTimeout:
		return "Temporarily mute a member"
	default:
		return "Block a member from opening tickets"
	}
}

func (a *actionCommand) Options() []*discordgo.ApplicationCommandOption {
	opts := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: fmt.Sprintf("Member to %s", a.kind.Verb()),
			Required:    true,
		},
	}
	if a.kind == modaction.KindTimeout {
		opts = append(opts, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "duration",
			Description: "10m, 1h, 2d, 1w or permanent",
			Required:    true,
		})
	}
	opts = append(opts, &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: fmt.Sprintf("Reason for the %s", a.kind.Verb()),
		Required:    false,
	})
	if a.kind == modaction.KindBan {
		opts = append(opts, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "delete_messages",
			Description: "Delete the member's messages from the last 7 days",
			Required:    false,
		})
	}
	opts = append(opts, &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionAttachment,
		Name:        "evidence",
		Description: "Screenshot or file proving the violation",
		Required:    false,
	})
	return opts
}

func (a *actionCommand) RequiresGuild() bool       { return true }
func (a *actionCommand) RequiresPermissions() bool { return true }

func (a *actionCommand) Handle(ctx *core.Context) error {
	data := ctx.Interaction.ApplicationCommandData()
	ext := core.NewOptionExtractor(data.Options, data.Resolved)

	targetID := ext.UserID("user")
	if targetID == "" {
		return &core.ValidationError{Field: "user", Message: "is required"}
	}
	var duration string
	if a.kind == modaction.KindTimeout {
		d, err := ext.StringRequired("duration")
		if err != nil {
			return err
		}
		duration = d
	}
	targetName := ""
	if u := ext.User("user"); u != nil {
		targetName = platform.DisplayName(u)
	}
	deleteHistory, _ := ext.Bool("delete_messages")

	if err := ctx.Responder.Defer(ctx.Interaction, false); err != nil {
		return fmt.Errorf("defer %s: %w", a.kind, err)
	}
	rep := &interactionReplier{responder: ctx.Responder, interaction: ctx.Interaction}

	record := &modaction.SlashRecord{
		InteractionID: ctx.Interaction.ID,
		Guild:         ctx.GuildID,
		Channel:       ctx.ChannelID,
		Author:        ctx.UserID,
		AuthorLabel:   ctx.UserName,
		TargetID:      targetID,
	}
	if att := ext.Attachment("evidence"); att != nil {
		record.Files = append(record.Files, modaction.Attachment{
			ID:          att.ID,
			Filename:    att.Filename,
			URL:         att.URL,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}
	if !modaction.HasEvidence(record) {
		a.parent.collectEvidence(ctx, rep, record)
	}

	inv := modaction.Invocation{
		GuildID:    ctx.GuildID,
		ChannelID:  ctx.ChannelID,
		IssuerID:   ctx.UserID,
		IssuerName: ctx.UserName,
	}
	report := a.parent.runner.RunPrepared(ctx.Ctx, inv, modaction.Prepared{
		Kind:          a.kind,
		TargetID:      targetID,
		TargetName:    targetName,
		Reason:        ext.String("reason"),
		Duration:      duration,
		DeleteHistory: deleteHistory,
		Evidence:      record,
	}, rep)

	ctx.Logger.Info("Slash moderation finished", "kind", string(a.kind), "done", report.Done, "abort", string(report.Abort))
	if !rep.used() {
		// Permission aborts are silent in chat; the deferred response still needs an answer.
		_ = ctx.Responder.EditResponse(ctx.Interaction, "❌ Action not performed.")
	}
	return nil
}

// collectEvidence absorbs the issuer's messages until one carries evidence or the window closes.
func (c *Commands) collectEvidence(ctx *core.Context, rep modaction.Replier, record *modaction.SlashRecord) {
	window := c.evidenceWindow()
	prompt := func() { _ = rep.Reply(ctx.Ctx, fmt.Sprintf(msgEvidenceWindow, modaction.HumanDuration(window))) }
	if c.waiter == nil || window <= 0 || modaction.HasEvidence(record) {
		prompt()
		return
	}

	deadline := time.Now().Add(window)
	for !modaction.HasEvidence(record) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		m, err := c.waiter.WaitAfter(ctx.Ctx, ctx.ChannelID, ctx.UserID, remaining, prompt)
		prompt = nil
		if err != nil {
			return
		}
		record.Absorb(modaction.FromDiscord(m, ctx.GuildID))
	}
}

// interactionReplier answers the deferred response first, then posts followups.
type interactionReplier struct {
	responder   *core.Responder
	interaction *discordgo.InteractionCreate

	mu     sync.Mutex
	edited bool
}

func (r *interactionReplier) Reply(_ context.Context, content string) error {
	r.mu.Lock()
	first := !r.edited
	r.edited = true
	r.mu.Unlock()

	if first {
		return r.responder.EditResponse(r.interaction, content)
	}
	_, err := r.responder.FollowUp(r.interaction, content, false)
	return err
}

func (r *interactionReplier) used() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edited
}

type historyCommand struct {
	cases CaseLister
}

func (h *historyCommand) Name() string        { return "modhistory" }
func (h *historyCommand) Description() string { return "Show recent moderation cases for a member" }

func (h *historyCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "Member to look up",
			Required:    true,
		},
	}
}

func (h *historyCommand) RequiresGuild() bool       { return true }
func (h *historyCommand) RequiresPermissions() bool { return true }

func (h *historyCommand) Handle(ctx *core.Context) error {
	data := ctx.Interaction.ApplicationCommandData()
	ext := core.NewOptionExtractor(data.Options, data.Resolved)
	userID := ext.UserID("user")
	if userID == "" {
		return &core.ValidationError{Field: "user", Message: "is required"}
	}

	cases, err := h.cases.ListCasesForUser(ctx.Ctx, ctx.GuildID, userID, historyLimit)
	if err != nil {
		return fmt.Errorf("list cases for %s: %w", userID, err)
	}
	if len(cases) == 0 {
		return ctx.Responder.Ephemeral(ctx.Interaction, fmt.Sprintf(msgNoHistory, modaction.Mention(userID)))
	}
	return ctx.Responder.Embed(ctx.Interaction, HistoryEmbed(userID, cases), nil, true)
}

// HistoryEmbed renders cases newest first, one line each.
func HistoryEmbed(userID string, cases []storage.CaseRecord) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, c := range cases {
		title := c.Kind
		if k, ok := modaction.ParseKind(c.Kind); ok {
			title = k.Title()
		}
		fmt.Fprintf(&b, "**%s** <t:%d:d> by %s", title, c.CreatedAt.Unix(), modaction.Mention(c.ModeratorID))
		if c.Duration != "" {
			fmt.Fprintf(&b, " (%s)", c.Duration)
		}
		reason := c.Reason
		if reason == "" {
			reason = modaction.DefaultReason
		}
		fmt.Fprintf(&b, "\n> %s\n", truncate(reason, 120))
	}
	return &discordgo.MessageEmbed{
		Title:       "Moderation history",
		Description: fmt.Sprintf("%s\n\n%s", modaction.Mention(userID), strings.TrimSpace(b.String())),
		Color:       theme.Info(),
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Showing %d most recent case(s)", len(cases))},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
