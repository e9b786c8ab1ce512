package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/log"
	"github.com/small-frappuccino/modwarden/pkg/moderation"
	"github.com/small-frappuccino/modwarden/pkg/storage"
)

// maxEvidenceBytes caps a single re-uploaded attachment.
const maxEvidenceBytes = 8 << 20

// CaseStore persists completed actions.
type CaseStore interface {
	InsertCase(ctx context.Context, c storage.CaseRecord) error
}

// AuditRecorder receives audit post results.
type AuditRecorder interface {
	RecordAudit(result string)
}

// AuditConfig wires an AuditLogger.
type AuditConfig struct {
	Platform platform.Platform
	Guilds   GuildSettings
	Store    CaseStore
	HTTP     *http.Client
	Backoff  time.Duration
	Metrics  AuditRecorder
	Logger   *slog.Logger
	NewID    func() string
}

// AuditLogger posts a record of every completed action to the guild's audit channel
// and appends it to the case ledger.
type AuditLogger struct {
	platform platform.Platform
	guilds   GuildSettings
	store    CaseStore
	http     *http.Client
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	newID    func() string
	metrics  AuditRecorder
	logger   *slog.Logger
}

// NewAuditLogger builds an AuditLogger.
func NewAuditLogger(cfg AuditConfig) *AuditLogger {
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.DiscordLogger()
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	return &AuditLogger{
		platform: cfg.Platform,
		guilds:   cfg.Guilds,
		store:    cfg.Store,
		http:     cfg.HTTP,
		backoff:  cfg.Backoff,
		sleep:    sleepContext,
		newID:    cfg.NewID,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

type evidenceFile struct {
	url         string
	name        string
	contentType string
	data        []byte
}

// LogAction writes the audit record for req. The case is stored even when the channel is unusable.
func (a *AuditLogger) LogAction(ctx context.Context, req moderation.Request) error {
	caseID := a.newID()
	files, unreachable := a.fetchAttachments(ctx, req.Evidence)
	links := evidenceLinks(req.Evidence)

	a.persist(ctx, caseID, req, links)

	channelID, err := ResolveAuditChannel(ctx, a.platform, a.guilds, req.GuildID)
	if err != nil {
		a.logger.Warn("Moderation action not posted to audit log",
			"caseID", caseID, "guildID", req.GuildID, "kind", string(req.Kind), "targetID", req.TargetID, "error", err)
		a.record("unavailable")
		return err
	}

	embed := BuildActionEmbed(caseID, req)
	if err := a.postWithRetry(ctx, channelID, embed, files); err != nil {
		if _, ferr := a.platform.SendText(ctx, channelID, PlainSummary(caseID, req)); ferr != nil {
			log.ErrorLoggerRaw().Error("Audit log post failed", "caseID", caseID, "guildID", req.GuildID, "channelID", channelID, "err", errors.Join(err, ferr))
			a.record("failed")
			return fmt.Errorf("post audit record %s: %w", caseID, errors.Join(err, ferr))
		}
		a.record("fallback")
		for _, f := range files {
			unreachable = append(unreachable, f.url)
		}
	} else {
		a.record("posted")
	}

	if extra := supplementaryRecord(caseID, links, unreachable); extra != "" {
		if _, err := a.platform.SendText(ctx, channelID, extra); err != nil {
			a.logger.Warn("Evidence links not posted", "caseID", caseID, "channelID", channelID, "error", err)
		}
	}
	return nil
}

func (a *AuditLogger) postWithRetry(ctx context.Context, channelID string, embed *discordgo.MessageEmbed, files []evidenceFile) error {
	send := func() error {
		_, err := a.platform.SendComplex(ctx, channelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{embed},
			Files:  discordFiles(files),
		})
		return err
	}
	err := send()
	if err == nil {
		return nil
	}
	a.logger.Debug("Retrying audit log post", "channelID", channelID, "error", err)
	if serr := a.sleep(ctx, a.backoff); serr != nil {
		return errors.Join(err, serr)
	}
	return send()
}

func (a *AuditLogger) persist(ctx context.Context, caseID string, req moderation.Request, links []string) {
	if a.store == nil {
		return
	}
	rec := storage.CaseRecord{
		CaseID:        caseID,
		GuildID:       req.GuildID,
		Kind:          string(req.Kind),
		TargetID:      req.TargetID,
		TargetName:    req.TargetName,
		ModeratorID:   req.IssuerID,
		ModeratorName: req.IssuerName,
		Reason:        req.Reason,
		Duration:      req.DurationLabel(),
		ChannelID:     req.ChannelID,
		EvidenceURLs:  links,
		CreatedAt:     req.CreatedAt,
	}
	if req.Evidence != nil {
		rec.MessageLink = req.Evidence.JumpLink()
		for _, att := range req.Evidence.Attachments() {
			rec.EvidenceURLs = append(rec.EvidenceURLs, att.URL)
		}
	}
	if err := a.store.InsertCase(ctx, rec); err != nil {
		log.DatabaseLogger().Error("Failed to store moderation case", "caseID", caseID, "guildID", req.GuildID, "error", err)
	}
}

// fetchAttachments downloads evidence attachments so they survive deletion of the source message.
// Attachments that cannot be fetched are returned by URL instead. Fetched files keep their URL
// for the text fallback.
func (a *AuditLogger) fetchAttachments(ctx context.Context, m moderation.Message) ([]evidenceFile, []string) {
	if m == nil {
		return nil, nil
	}
	var files []evidenceFile
	var unreachable []string
	for _, att := range m.Attachments() {
		data, err := a.download(ctx, att.URL)
		if err != nil {
			a.logger.Debug("Evidence attachment not re-uploaded", "url", att.URL, "error", err)
			unreachable = append(unreachable, att.URL)
			continue
		}
		name := att.Filename
		if name == "" {
			name = "evidence-" + att.ID
		}
		files = append(files, evidenceFile{url: att.URL, name: name, contentType: att.ContentType, data: data})
	}
	return files, unreachable
}

func (a *AuditLogger) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEvidenceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEvidenceBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxEvidenceBytes)
	}
	return data, nil
}

func (a *AuditLogger) record(result string) {
	if a.metrics != nil {
		a.metrics.RecordAudit(result)
	}
}

func discordFiles(files []evidenceFile) []*discordgo.File {
	if len(files) == 0 {
		return nil
	}
	out := make([]*discordgo.File, 0, len(files))
	for _, f := range files {
		out = append(out, &discordgo.File{Name: f.name, ContentType: f.contentType, Reader: bytes.NewReader(f.data)})
	}
	return out
}

func evidenceLinks(m moderation.Message) []string {
	if m == nil {
		return nil
	}
	return moderation.ExtractLinks(m.Content(), moderation.MaxEvidenceLinks)
}

// BuildActionEmbed renders the audit embed of an action.
func BuildActionEmbed(caseID string, req moderation.Request) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Target User", Value: formatUserLabel(req.TargetName, req.TargetID), Inline: true},
		{Name: "Moderator", Value: formatUserLabel(req.IssuerName, req.IssuerID), Inline: true},
		{Name: "Reason", Value: truncate(req.Reason, embedFieldLimit)},
	}
	switch req.Kind {
	case moderation.KindTimeout:
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Duration", Value: req.DurationLabel(), Inline: true})
	case moderation.KindBan:
		history := "No"
		if req.DeleteHistory {
			history = fmt.Sprintf("Last %d days", moderation.DeleteHistoryDays)
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Message History Deleted", Value: history, Inline: true})
	case moderation.KindTicketBlacklist:
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Role", Value: formatRoleLabel(req.RoleID, req.RoleName), Inline: true})
	}
	fields = append(fields, &discordgo.MessageEmbedField{Name: "Channel", Value: formatChannelLabel(req.ChannelID), Inline: true})
	if req.Evidence != nil {
		if link := req.Evidence.JumpLink(); link != "" {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "Evidence", Value: "[Jump to message](" + link + ")", Inline: true})
		}
		if notes := strings.TrimSpace(req.Evidence.Content()); notes != "" {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "Evidence Notes", Value: truncate(notes, embedFieldLimit)})
		}
	}

	ts := req.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return &discordgo.MessageEmbed{
		Title:     "🔨 Moderation Action: " + req.Kind.Title(),
		Color:     moderation.ColorFor(req.Kind),
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: "Action ID: " + caseID},
		Timestamp: ts.UTC().Format(time.RFC3339),
	}
}

// PlainSummary is the text-only record posted when the embed cannot be delivered.
func PlainSummary(caseID string, req moderation.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔨 **Moderation Action: %s**\n", req.Kind.Title())
	fmt.Fprintf(&b, "Target: %s\n", formatUserLabel(req.TargetName, req.TargetID))
	fmt.Fprintf(&b, "Moderator: %s\n", formatUserLabel(req.IssuerName, req.IssuerID))
	fmt.Fprintf(&b, "Reason: %s\n", req.Reason)
	if d := req.DurationLabel(); d != "" {
		fmt.Fprintf(&b, "Duration: %s\n", d)
	}
	if req.Evidence != nil {
		fmt.Fprintf(&b, "Evidence: %s\n", req.Evidence.JumpLink())
	}
	fmt.Fprintf(&b, "Action ID: %s", caseID)
	return truncate(b.String(), messageLimit)
}

func supplementaryRecord(caseID string, links, unreachable []string) string {
	if len(links) == 0 && len(unreachable) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📎 Evidence for action `%s`:", caseID)
	for _, l := range links {
		b.WriteString("\n" + l)
	}
	for _, u := range unreachable {
		b.WriteString("\n" + u)
	}
	return truncate(b.String(), messageLimit)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
