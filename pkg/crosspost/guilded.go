package crosspost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const defaultGuildedBaseURL = "https://www.guilded.gg/api/v1"

// GuildedEmbed is the Guilded chat embed shape.
type GuildedEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *GuildedEmbedFooter `json:"footer,omitempty"`
	Author      *GuildedEmbedAuthor `json:"author,omitempty"`
	Thumbnail   *GuildedEmbedMedia  `json:"thumbnail,omitempty"`
	Image       *GuildedEmbedMedia  `json:"image,omitempty"`
	Fields      []GuildedEmbedField `json:"fields,omitempty"`
}

type GuildedEmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"iconUrl,omitempty"`
}

type GuildedEmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"iconUrl,omitempty"`
}

type GuildedEmbedMedia struct {
	URL string `json:"url"`
}

type GuildedEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// GuildedMessage is the body of POST /channels/{id}/messages.
type GuildedMessage struct {
	Content  string         `json:"content,omitempty"`
	IsPublic bool           `json:"isPublic"`
	IsSilent bool           `json:"isSilent"`
	Embeds   []GuildedEmbed `json:"embeds,omitempty"`
}

// GuildedConfig configures a GuildedClient.
type GuildedConfig struct {
	Token     string
	BaseURL   string
	Timeout   time.Duration
	PerSecond float64 // outbound request pacing
}

// GuildedClient posts chat messages through the Guilded bot API.
type GuildedClient struct {
	http    httpClient
	token   string
	baseURL string
}

// NewGuildedClient returns a closed client; call Open before use.
func NewGuildedClient(cfg GuildedConfig) *GuildedClient {
	return &GuildedClient{
		http:    newHTTPClient(cfg.Timeout, cfg.PerSecond),
		token:   strings.TrimSpace(cfg.Token),
		baseURL: trimBase(cfg.BaseURL, defaultGuildedBaseURL),
	}
}

// Configured reports whether a bot token is present.
func (c *GuildedClient) Configured() bool {
	return c != nil && c.token != ""
}

func (c *GuildedClient) Open()  { c.http.open() }
func (c *GuildedClient) Close() { c.http.close() }

// PostMessage sends msg to a Guilded channel.
func (c *GuildedClient) PostMessage(ctx context.Context, channelID string, msg GuildedMessage) error {
	if strings.TrimSpace(channelID) == "" {
		return &RequestError{Op: "guilded post message", Err: fmt.Errorf("channel id is empty")}
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	endpoint := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, url.PathEscape(channelID))
	_, err := c.http.do(ctx, "guilded post message", http.MethodPost, endpoint, msg, header)
	return err
}

// ConvertEmbed maps a Discord embed onto the Guilded embed shape, keeping
// only the parts that are set.
func ConvertEmbed(e *discordgo.MessageEmbed) GuildedEmbed {
	if e == nil {
		return GuildedEmbed{}
	}
	out := GuildedEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
		Timestamp:   e.Timestamp,
	}
	if e.Footer != nil {
		out.Footer = &GuildedEmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
	}
	if e.Author != nil {
		out.Author = &GuildedEmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
	}
	if e.Thumbnail != nil && e.Thumbnail.URL != "" {
		out.Thumbnail = &GuildedEmbedMedia{URL: e.Thumbnail.URL}
	}
	if e.Image != nil && e.Image.URL != "" {
		out.Image = &GuildedEmbedMedia{URL: e.Image.URL}
	}
	for _, f := range e.Fields {
		if f == nil {
			continue
		}
		out.Fields = append(out.Fields, GuildedEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

// BuildGuildedMessage renders a Discord announcement for Guilded: an
// attribution header, the original content, attachment links and embeds.
func BuildGuildedMessage(m *discordgo.Message, authorName string) GuildedMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "**📢 Update from Discord** (by %s)\n\n", authorName)
	b.WriteString(m.Content)
	if len(m.Attachments) > 0 {
		b.WriteString("\n\n**📎 Attachments:**\n")
		for i, a := range m.Attachments {
			if a == nil {
				continue
			}
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, a.Filename, a.URL)
		}
	}

	msg := GuildedMessage{Content: b.String(), IsPublic: true}
	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		msg.Embeds = append(msg.Embeds, ConvertEmbed(e))
	}
	return msg
}
