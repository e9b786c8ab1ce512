package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/collector"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/log"
)

// User-facing texts.
const (
	msgTookTooLong      = "You took too long to respond!"
	msgWhoPrompt        = "Who do you want to %s? Please mention them and attach evidence."
	msgMentionRequired  = "❌ Please mention a valid user to %s."
	msgSelfTarget       = "❌ You can't %s yourself."
	msgEvidencePrompt   = "❌ Please provide a link or image as evidence before %s."
	msgEvidenceFailed   = "❌ No valid evidence provided. %s cancelled."
	msgReasonPrompt     = "Please provide a reason for the %s."
	msgDurationPrompt   = "How long should the timeout be? (e.g., 10m, 1h, 2d, 1w)"
	msgInvalidDuration  = "❌ Invalid duration format. Use 10m, 1h, 2d, or 1w"
	msgDeleteHistoryQ   = "Do you want to delete this user's recent messages?"
	msgYesNoSuffix      = " (yes/no)"
	msgYesNoTimeout     = "No answer received, continuing with **no**."
	msgYesNoUnknown     = "Answer not recognised, continuing with **no**."
	msgNoPermission     = "❌ I don't have permission to %s this user."
	msgRemoteFailed     = "❌ Failed to %s the user. (%s)"
	msgRoleMissing      = "❌ The **%s** role does not exist. Create it before using this command."
	msgNotMember        = "❌ That user is not a member of this server."
	msgAlreadyBlacklist = "⚠️ %s is already ticket blacklisted."
	msgSuccess          = "✅ %s has been %s%s!"
	msgDMSent           = " (user notified via DM)"
	msgDMFailed         = " (could not DM user)"
)

// Replier delivers workflow messages to the issuer.
type Replier interface {
	Reply(ctx context.Context, content string) error
}

// ChannelReplier replies by posting into a channel.
type ChannelReplier struct {
	Messenger platform.Messenger
	ChannelID string
}

func (r ChannelReplier) Reply(ctx context.Context, content string) error {
	_, err := r.Messenger.SendText(ctx, r.ChannelID, content)
	return err
}

// Waiter suspends until the issuer's next message in a channel. The wait is
// registered before send runs, so a reply to the prompt cannot slip past it.
type Waiter interface {
	WaitAfter(ctx context.Context, channelID, authorID string, timeout time.Duration, send func()) (*discordgo.Message, error)
}

// Auditor records a completed action.
type Auditor interface {
	LogAction(ctx context.Context, req Request) error
}

// Cleaner schedules delayed deletion of chat messages.
type Cleaner interface {
	DeleteAfter(ctx context.Context, channelID string, messageIDs []string, delay time.Duration)
}

// GuildSettings resolves per-guild configuration.
type GuildSettings interface {
	GuildConfig(guildID string) *files.GuildConfig
}

// Recorder receives workflow outcomes for metrics.
type Recorder interface {
	RecordAction(kind, outcome string)
}

// Timing groups the workflow's wait and cleanup durations.
type Timing struct {
	Response       time.Duration
	EvidenceDelete time.Duration
	TimeoutDelete  time.Duration
}

// TimingFromRuntime copies the relevant runtime settings.
func TimingFromRuntime(rt files.RuntimeConfig) Timing {
	rt = rt.WithDefaults()
	return Timing{
		Response:       rt.ResponseTimeout.Std(),
		EvidenceDelete: rt.EvidenceDeleteDelay.Std(),
		TimeoutDelete:  rt.TimeoutDeleteDelay.Std(),
	}
}

// Config wires an Executor.
type Config struct {
	Platform platform.Platform
	Waiter   Waiter
	Auditor  Auditor
	Notifier *Notifier
	Cleaner  Cleaner
	Guilds   GuildSettings
	Timing   Timing
	Now      func() time.Time
	Metrics  Recorder
	Logger   *slog.Logger
}

// Executor runs the moderation workflows.
type Executor struct {
	platform platform.Platform
	waiter   Waiter
	auditor  Auditor
	notifier *Notifier
	cleaner  Cleaner
	guilds   GuildSettings
	timing   Timing
	now      func() time.Time
	metrics  Recorder
	logger   *slog.Logger
}

// NewExecutor builds an Executor, filling unset timings and the clock with defaults.
func NewExecutor(cfg Config) *Executor {
	def := TimingFromRuntime(files.RuntimeConfig{})
	if cfg.Timing.Response <= 0 {
		cfg.Timing.Response = def.Response
	}
	if cfg.Timing.EvidenceDelete <= 0 {
		cfg.Timing.EvidenceDelete = def.EvidenceDelete
	}
	if cfg.Timing.TimeoutDelete <= 0 {
		cfg.Timing.TimeoutDelete = def.TimeoutDelete
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.ApplicationLogger()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NewNotifier(cfg.Platform, 0)
	}
	return &Executor{
		platform: cfg.Platform,
		waiter:   cfg.Waiter,
		auditor:  cfg.Auditor,
		notifier: cfg.Notifier,
		cleaner:  cfg.Cleaner,
		guilds:   cfg.Guilds,
		timing:   cfg.Timing,
		now:      cfg.Now,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "moderation"),
	}
}

// Run executes a prefix-command workflow: single-line when the command text is complete,
// interactive otherwise.
func (e *Executor) Run(ctx context.Context, kind Kind, inv Invocation) Report {
	rep := ChannelReplier{Messenger: e.platform, ChannelID: inv.ChannelID}

	if !e.checkPermission(ctx, inv).OK() {
		return e.finish(kind, Report{Abort: AbortPermission})
	}

	res := e.resolveArguments(ctx, kind, inv, rep)
	if !res.OK() {
		return e.finish(kind, Report{Abort: abortFor(res.Outcome, AbortMissingTarget)})
	}
	d := res.Value

	ev := e.ensureEvidence(ctx, inv, rep, kind, d.evidence)
	if !ev.OK() {
		return e.finish(kind, Report{Abort: abortFor(ev.Outcome, AbortMissingEvidence)})
	}
	if ev.Value != d.evidence {
		d.replies = append(d.replies, d.evidence)
	}
	d.evidence = ev.Value

	if d.interactive {
		reason := e.collectText(ctx, inv, rep, fmt.Sprintf(msgReasonPrompt, kind.Verb()))
		if !reason.OK() {
			return e.finish(kind, Report{Abort: abortFor(reason.Outcome, AbortTimeout)})
		}
		d.reason = reason.Value

		if kind == KindTimeout {
			dur := e.collectText(ctx, inv, rep, msgDurationPrompt)
			if !dur.OK() {
				return e.finish(kind, Report{Abort: abortFor(dur.Outcome, AbortTimeout)})
			}
			d.durationToken = dur.Value
		}
		if kind == KindBan {
			d.deleteHistory = e.askYesNo(ctx, inv, rep, msgDeleteHistoryQ).Value
		}
	}

	return e.execute(ctx, inv, rep, d)
}

// RunPrepared executes a workflow whose fields came from slash-command options.
// Evidence collection has already happened; missing evidence aborts immediately.
func (e *Executor) RunPrepared(ctx context.Context, inv Invocation, p Prepared, rep Replier) Report {
	if !e.checkPermission(ctx, inv).OK() {
		return e.finish(p.Kind, Report{Abort: AbortPermission})
	}
	if p.TargetID == "" {
		e.reply(ctx, rep, fmt.Sprintf(msgMentionRequired, p.Kind.Verb()))
		return e.finish(p.Kind, Report{Abort: AbortMissingTarget})
	}
	if p.TargetID == inv.IssuerID {
		e.reply(ctx, rep, fmt.Sprintf(msgSelfTarget, p.Kind.Verb()))
		return e.finish(p.Kind, Report{Abort: AbortMissingTarget})
	}
	if !HasEvidence(p.Evidence) {
		e.reply(ctx, rep, fmt.Sprintf(msgEvidenceFailed, p.Kind.Title()))
		return e.finish(p.Kind, Report{Abort: AbortMissingEvidence})
	}
	d := draft{
		kind:          p.Kind,
		targetID:      p.TargetID,
		targetName:    p.TargetName,
		reason:        p.Reason,
		durationToken: p.Duration,
		deleteHistory: p.DeleteHistory,
		evidence:      p.Evidence,
	}
	return e.execute(ctx, inv, rep, d)
}

func (e *Executor) checkPermission(ctx context.Context, inv Invocation) Result[struct{}] {
	allowed := files.DefaultAllowedRoles
	if e.guilds != nil {
		if gc := e.guilds.GuildConfig(inv.GuildID); gc != nil {
			allowed = gc.ModeratorRoles()
		}
	}
	held, err := platform.MemberRoleNames(ctx, e.platform, inv.GuildID, inv.IssuerID)
	if err != nil {
		e.logger.Warn("Permission lookup failed", "guildID", inv.GuildID, "userID", inv.IssuerID, "error", err)
		return Fail[struct{}](OutcomeDenied)
	}
	if !platform.HasAnyRole(held, allowed) {
		e.logger.Debug("Moderation command ignored for unprivileged issuer", "guildID", inv.GuildID, "userID", inv.IssuerID)
		return Fail[struct{}](OutcomeDenied)
	}
	return Ok(struct{}{})
}

func (e *Executor) resolveArguments(ctx context.Context, kind Kind, inv Invocation, rep Replier) Result[draft] {
	d := draft{kind: kind}
	if inv.Command != nil {
		if mention, ok := e.parseSingleLine(kind, inv.Command.Content(), &d); ok {
			d.targetID = firstOr(inv.Command.Mentions(), ExtractUserID(mention))
			d.evidence = inv.Command
			return e.checkTarget(ctx, inv, rep, d)
		}
	}

	d.interactive = true
	reply := e.collect(ctx, inv, rep, fmt.Sprintf(msgWhoPrompt, kind.Verb()))
	if !reply.OK() {
		return Fail[draft](reply.Outcome)
	}
	d.targetID = firstOr(reply.Value.Mentions(), "")
	d.evidence = reply.Value
	return e.checkTarget(ctx, inv, rep, d)
}

func (e *Executor) parseSingleLine(kind Kind, text string, d *draft) (string, bool) {
	switch kind {
	case KindBan:
		a, ok := ParseBanCommand(text)
		d.deleteHistory, d.reason = a.DeleteHistory, a.Reason
		return a.Mention, ok
	case KindKick:
		a, ok := ParseKickCommand(text)
		d.reason = a.Reason
		return a.Mention, ok
	case KindTicketBlacklist:
		a, ok := ParseBlacklistCommand(text)
		d.reason = a.Reason
		return a.Mention, ok
	case KindTimeout:
		a, ok := ParseTimeoutCommand(text)
		d.durationToken, d.reason = a.Duration, a.Reason
		return a.Mention, ok
	}
	return "", false
}

func (e *Executor) checkTarget(ctx context.Context, inv Invocation, rep Replier, d draft) Result[draft] {
	if d.targetID == "" {
		e.reply(ctx, rep, fmt.Sprintf(msgMentionRequired, d.kind.Verb()))
		return Fail[draft](OutcomeInvalid)
	}
	if d.targetID == inv.IssuerID {
		e.reply(ctx, rep, fmt.Sprintf(msgSelfTarget, d.kind.Verb()))
		return Fail[draft](OutcomeInvalid)
	}
	if in, ok := d.evidence.(*InboundMessage); ok {
		if u := in.MentionedUser(d.targetID); u != nil {
			d.targetName = platform.DisplayName(u)
		}
	}
	return Ok(d)
}

// ensureEvidence returns candidate when it carries evidence; otherwise it asks once for a replacement.
func (e *Executor) ensureEvidence(ctx context.Context, inv Invocation, rep Replier, kind Kind, candidate Message) Result[Message] {
	if HasEvidence(candidate) {
		return Ok(candidate)
	}
	replacement := e.collect(ctx, inv, rep, fmt.Sprintf(msgEvidencePrompt, kind.Gerund()))
	if !replacement.OK() {
		return replacement
	}
	if !HasEvidence(replacement.Value) {
		e.reply(ctx, rep, fmt.Sprintf(msgEvidenceFailed, kind.Title()))
		return Fail[Message](OutcomeInvalid)
	}
	return replacement
}

// collect prompts and waits for the issuer's next message. A timeout is reported to the issuer.
func (e *Executor) collect(ctx context.Context, inv Invocation, rep Replier, prompt string) Result[Message] {
	var send func()
	if prompt != "" {
		send = func() { e.reply(ctx, rep, prompt) }
	}
	m, err := e.waiter.WaitAfter(ctx, inv.ChannelID, inv.IssuerID, e.timing.Response, send)
	switch {
	case err == nil:
		return Ok[Message](FromDiscord(m, inv.GuildID))
	case errors.Is(err, collector.ErrTimeout):
		e.reply(ctx, rep, msgTookTooLong)
		return Fail[Message](OutcomeTimeout)
	default:
		return Fail[Message](OutcomeCancelled)
	}
}

func (e *Executor) collectText(ctx context.Context, inv Invocation, rep Replier, prompt string) Result[string] {
	m := e.collect(ctx, inv, rep, prompt)
	if !m.OK() {
		return Fail[string](m.Outcome)
	}
	return Ok(strings.TrimSpace(m.Value.Content()))
}

// askYesNo never fails: unrecognised answers and timeouts collapse to false with an explanation.
func (e *Executor) askYesNo(ctx context.Context, inv Invocation, rep Replier, question string) Result[bool] {
	m, err := e.waiter.WaitAfter(ctx, inv.ChannelID, inv.IssuerID, e.timing.Response, func() {
		e.reply(ctx, rep, question+msgYesNoSuffix)
	})
	if err != nil {
		if errors.Is(err, collector.ErrTimeout) {
			e.reply(ctx, rep, msgYesNoTimeout)
		}
		return Ok(false)
	}
	v, recognized := yesNo(m.Content)
	if !recognized {
		e.reply(ctx, rep, msgYesNoUnknown)
	}
	return Ok(v)
}

func (e *Executor) execute(ctx context.Context, inv Invocation, rep Replier, d draft) Report {
	kind := d.kind
	req := Request{
		Kind:          kind,
		GuildID:       inv.GuildID,
		ChannelID:     inv.ChannelID,
		TargetID:      d.targetID,
		TargetName:    d.targetName,
		IssuerID:      inv.IssuerID,
		IssuerName:    inv.IssuerName,
		Reason:        strings.TrimSpace(d.reason),
		DeleteHistory: d.deleteHistory,
		Evidence:      d.evidence,
		CreatedAt:     e.now(),
	}
	if req.Reason == "" {
		req.Reason = DefaultReason
	}

	if kind == KindTimeout {
		req.Expiry = ParseDuration(d.durationToken, req.CreatedAt)
		if !req.Expiry.Valid() {
			e.reply(ctx, rep, msgInvalidDuration)
			return e.finish(kind, Report{Abort: AbortInvalidDuration})
		}
		// Replies, DM and audit record report the span actually applied.
		req.Expiry = req.Expiry.Capped(req.CreatedAt, platform.MaxTimeout)
	}

	member, memberErr := e.platform.Member(ctx, req.GuildID, req.TargetID)
	if memberErr == nil && member != nil && req.TargetName == "" {
		req.TargetName = memberLabel(member)
	}
	if req.TargetName == "" {
		req.TargetName = req.TargetID
	}

	if kind == KindTicketBlacklist {
		if abort := e.prepareBlacklist(ctx, rep, &req, member, memberErr); abort != AbortNone {
			return e.finish(kind, Report{Abort: abort})
		}
	}

	if err := e.remoteCall(ctx, req); err != nil {
		e.logger.Error("Moderation action failed",
			"kind", string(kind), "guildID", req.GuildID, "targetID", req.TargetID, "moderatorID", req.IssuerID, "error", err)
		if platform.IsPermissionDenied(err) {
			e.reply(ctx, rep, fmt.Sprintf(msgNoPermission, kind.Verb()))
		} else {
			e.reply(ctx, rep, fmt.Sprintf(msgRemoteFailed, kind.Verb(), platform.Diagnostic(err)))
		}
		return e.finish(kind, Report{Abort: AbortRemoteFailed, Err: err})
	}

	guildName, err := e.platform.GuildName(ctx, req.GuildID)
	if err != nil || guildName == "" {
		guildName = "the server"
	}
	delivered := e.notifier.Notify(ctx, req, guildName)

	suffix := msgDMFailed
	if delivered {
		suffix = msgDMSent
	}
	e.reply(ctx, rep, fmt.Sprintf(msgSuccess, Mention(req.TargetID), successDetail(req), suffix))

	e.logger.Info("Moderation action applied",
		"kind", string(kind), "guildID", req.GuildID, "targetID", req.TargetID, "moderatorID", req.IssuerID, "dm", delivered)

	if e.auditor != nil {
		if err := e.auditor.LogAction(ctx, req); err != nil {
			e.logger.Warn("Audit log not written", "kind", string(kind), "guildID", req.GuildID, "error", err)
		}
	}

	e.scheduleCleanup(ctx, inv, d, kind)
	return e.finish(kind, Report{Done: true, Request: &req, DMDelivered: delivered})
}

func (e *Executor) prepareBlacklist(ctx context.Context, rep Replier, req *Request, member *discordgo.Member, memberErr error) AbortReason {
	roleName := files.DefaultBlacklistRoleName
	if e.guilds != nil {
		if gc := e.guilds.GuildConfig(req.GuildID); gc != nil {
			roleName = gc.BlacklistRole()
		}
	}
	role, err := platform.FindRoleByName(ctx, e.platform, req.GuildID, roleName)
	if err != nil {
		e.reply(ctx, rep, fmt.Sprintf(msgRemoteFailed, req.Kind.Verb(), platform.Diagnostic(err)))
		return AbortRemoteFailed
	}
	if role == nil {
		e.reply(ctx, rep, fmt.Sprintf(msgRoleMissing, roleName))
		return AbortRoleMissing
	}
	if memberErr != nil || member == nil {
		e.reply(ctx, rep, msgNotMember)
		return AbortMissingTarget
	}
	if platform.MemberHasRoleID(member, role.ID) {
		e.reply(ctx, rep, fmt.Sprintf(msgAlreadyBlacklist, Mention(req.TargetID)))
		return AbortAlreadyApplied
	}
	req.RoleID, req.RoleName = role.ID, role.Name
	return AbortNone
}

func (e *Executor) remoteCall(ctx context.Context, req Request) error {
	auditReason := fmt.Sprintf("%s | by %s (%s)", req.Reason, req.IssuerName, req.IssuerID)
	switch req.Kind {
	case KindBan:
		return e.platform.Ban(ctx, req.GuildID, req.TargetID, auditReason, req.DeleteDays())
	case KindKick:
		return e.platform.Kick(ctx, req.GuildID, req.TargetID, auditReason)
	case KindTimeout:
		return e.platform.Timeout(ctx, req.GuildID, req.TargetID, req.Expiry.At, auditReason)
	case KindTicketBlacklist:
		return e.platform.AddRole(ctx, req.GuildID, req.TargetID, req.RoleID, auditReason)
	}
	return fmt.Errorf("unsupported moderation kind %q", req.Kind)
}

func (e *Executor) scheduleCleanup(ctx context.Context, inv Invocation, d draft, kind Kind) {
	if e.cleaner == nil {
		return
	}
	commandID := ""
	if inv.Command != nil {
		commandID = inv.Command.ID()
	}
	var ids []string
	for _, m := range append(slices.Clone(d.replies), d.evidence) {
		if m == nil {
			continue
		}
		for _, id := range m.CleanupIDs() {
			if id != "" && id != commandID && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return
	}
	delay := e.timing.EvidenceDelete
	if kind == KindTimeout {
		delay = e.timing.TimeoutDelete
	}
	e.cleaner.DeleteAfter(ctx, inv.ChannelID, ids, delay)
}

func (e *Executor) reply(ctx context.Context, rep Replier, content string) {
	if err := rep.Reply(ctx, content); err != nil {
		e.logger.Warn("Failed to reply to issuer", "error", err)
	}
}

func (e *Executor) finish(kind Kind, r Report) Report {
	if e.metrics != nil {
		outcome := "done"
		if !r.Done {
			outcome = string(r.Abort)
		}
		e.metrics.RecordAction(string(kind), outcome)
	}
	return r
}

func successDetail(req Request) string {
	detail := req.Kind.PastTense()
	if req.Kind == KindTimeout {
		return detail + " for " + req.Expiry.String()
	}
	return detail
}

func abortFor(o Outcome, invalid AbortReason) AbortReason {
	switch o {
	case OutcomeTimeout:
		return AbortTimeout
	case OutcomeCancelled:
		return AbortCancelled
	case OutcomeDenied:
		return AbortPermission
	default:
		return invalid
	}
}

func firstOr(ids []string, fallback string) string {
	if len(ids) > 0 {
		return ids[0]
	}
	return fallback
}

func memberLabel(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	return platform.DisplayName(m.User)
}
