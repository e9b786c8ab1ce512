package moderation

import (
	"regexp"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
)

// Attachment is a file carried by an evidence message.
type Attachment struct {
	ID          string
	Filename    string
	URL         string
	ContentType string
	Size        int
}

// Message is anything that can carry evidence: a real inbound chat message
// or the synthetic record assembled for a slash command.
type Message interface {
	ID() string
	Content() string
	AuthorID() string
	AuthorName() string
	ChannelID() string
	GuildID() string
	// Mentions returns mentioned user IDs in the order they appear.
	Mentions() []string
	Attachments() []Attachment
	JumpLink() string
	// CleanupIDs lists the chat messages that may be deleted once the action is logged.
	CleanupIDs() []string
}

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// InboundMessage adapts a *discordgo.Message.
type InboundMessage struct {
	m *discordgo.Message
}

// FromDiscord wraps m. GuildID is taken from fallbackGuild when the payload omits it.
func FromDiscord(m *discordgo.Message, fallbackGuild string) *InboundMessage {
	if m.GuildID == "" && fallbackGuild != "" {
		cp := *m
		cp.GuildID = fallbackGuild
		m = &cp
	}
	return &InboundMessage{m: m}
}

// Raw returns the wrapped message.
func (i *InboundMessage) Raw() *discordgo.Message { return i.m }

func (i *InboundMessage) ID() string        { return i.m.ID }
func (i *InboundMessage) Content() string   { return i.m.Content }
func (i *InboundMessage) ChannelID() string { return i.m.ChannelID }
func (i *InboundMessage) GuildID() string   { return i.m.GuildID }

func (i *InboundMessage) AuthorID() string {
	if i.m.Author == nil {
		return ""
	}
	return i.m.Author.ID
}

func (i *InboundMessage) AuthorName() string { return platform.DisplayName(i.m.Author) }

// Mentions prefers textual order and then appends payload mentions not present in the text.
func (i *InboundMessage) Mentions() []string {
	var ids []string
	for _, sub := range mentionPattern.FindAllStringSubmatch(i.m.Content, -1) {
		if !slices.Contains(ids, sub[1]) {
			ids = append(ids, sub[1])
		}
	}
	for _, u := range i.m.Mentions {
		if u != nil && !slices.Contains(ids, u.ID) {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

// MentionedUser returns the payload user for id, if present.
func (i *InboundMessage) MentionedUser(id string) *discordgo.User {
	for _, u := range i.m.Mentions {
		if u != nil && u.ID == id {
			return u
		}
	}
	return nil
}

func (i *InboundMessage) Attachments() []Attachment {
	out := make([]Attachment, 0, len(i.m.Attachments))
	for _, a := range i.m.Attachments {
		if a == nil {
			continue
		}
		out = append(out, Attachment{ID: a.ID, Filename: a.Filename, URL: a.URL, ContentType: a.ContentType, Size: a.Size})
	}
	return out
}

func (i *InboundMessage) JumpLink() string {
	return platform.JumpLink(i.m.GuildID, i.m.ChannelID, i.m.ID)
}

func (i *InboundMessage) CleanupIDs() []string { return []string{i.m.ID} }

// SlashRecord is the evidence assembled for a slash command invocation.
type SlashRecord struct {
	InteractionID string
	Guild         string
	Channel       string
	Author        string
	AuthorLabel   string
	Text          string
	TargetID      string
	Files         []Attachment
	// Collected holds the IDs of issuer messages gathered during the evidence window.
	Collected []string
	Link      string
}

func (s *SlashRecord) ID() string         { return s.InteractionID }
func (s *SlashRecord) Content() string    { return s.Text }
func (s *SlashRecord) AuthorID() string   { return s.Author }
func (s *SlashRecord) AuthorName() string { return s.AuthorLabel }
func (s *SlashRecord) ChannelID() string  { return s.Channel }
func (s *SlashRecord) GuildID() string    { return s.Guild }

func (s *SlashRecord) Mentions() []string {
	if s.TargetID == "" {
		return nil
	}
	return []string{s.TargetID}
}

func (s *SlashRecord) Attachments() []Attachment { return slices.Clone(s.Files) }

func (s *SlashRecord) JumpLink() string {
	if s.Link != "" {
		return s.Link
	}
	return platform.JumpLink(s.Guild, s.Channel, "")
}

func (s *SlashRecord) CleanupIDs() []string { return slices.Clone(s.Collected) }

// Absorb appends the text and attachments of a collected issuer message.
func (s *SlashRecord) Absorb(m Message) {
	if m == nil {
		return
	}
	if txt := m.Content(); txt != "" {
		if s.Text != "" {
			s.Text += "\n"
		}
		s.Text += txt
	}
	s.Files = append(s.Files, m.Attachments()...)
	s.Collected = append(s.Collected, m.ID())
	if s.Link == "" {
		s.Link = m.JumpLink()
	}
}
