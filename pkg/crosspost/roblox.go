package crosspost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	defaultRobloxAuthURL   = "https://auth.roblox.com"
	defaultRobloxGroupsURL = "https://groups.roblox.com"

	csrfHeader = "X-Csrf-Token"

	// MaxShoutLength and MaxWallPostLength are the Roblox group limits.
	MaxShoutLength    = 255
	MaxWallPostLength = 500
)

// RobloxConfig configures a RobloxClient. Cookie is the .ROBLOSECURITY value
// of the account that owns the group shout permission.
type RobloxConfig struct {
	Cookie    string
	AuthURL   string
	GroupsURL string
	Timeout   time.Duration
	PerSecond float64
}

// RobloxClient posts group shouts and wall posts with cookie authentication.
type RobloxClient struct {
	http      httpClient
	cookie    string
	authURL   string
	groupsURL string

	mu   sync.Mutex
	csrf string
}

// NewRobloxClient returns a closed client; call Open before use.
func NewRobloxClient(cfg RobloxConfig) *RobloxClient {
	return &RobloxClient{
		http:      newHTTPClient(cfg.Timeout, cfg.PerSecond),
		cookie:    strings.TrimSpace(cfg.Cookie),
		authURL:   trimBase(cfg.AuthURL, defaultRobloxAuthURL),
		groupsURL: trimBase(cfg.GroupsURL, defaultRobloxGroupsURL),
	}
}

// Configured reports whether a session cookie is present.
func (c *RobloxClient) Configured() bool {
	return c != nil && c.cookie != ""
}

func (c *RobloxClient) Open() { c.http.open() }

func (c *RobloxClient) Close() {
	c.mu.Lock()
	c.csrf = ""
	c.mu.Unlock()
	c.http.close()
}

// PostShout replaces the group shout. Messages longer than MaxShoutLength are truncated.
func (c *RobloxClient) PostShout(ctx context.Context, groupID, message string) error {
	endpoint := fmt.Sprintf("%s/v1/groups/%s/status", c.groupsURL, url.PathEscape(groupID))
	body := map[string]string{"message": truncateRunes(message, MaxShoutLength)}
	return c.send(ctx, "roblox group shout", http.MethodPatch, endpoint, body)
}

// PostWall adds a group wall post. Messages longer than MaxWallPostLength are truncated.
func (c *RobloxClient) PostWall(ctx context.Context, groupID, message string) error {
	endpoint := fmt.Sprintf("%s/v2/groups/%s/wall/posts", c.groupsURL, url.PathEscape(groupID))
	body := map[string]string{"body": truncateRunes(message, MaxWallPostLength)}
	return c.send(ctx, "roblox group wall", http.MethodPost, endpoint, body)
}

// send performs an authenticated call. Roblox rejects a stale CSRF token
// with 403 and a fresh token in the response header; the call is replayed
// once with that token.
func (c *RobloxClient) send(ctx context.Context, op, method, endpoint string, body any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	resp, err := c.http.do(ctx, op, method, endpoint, body, c.header(token))
	if err == nil {
		return nil
	}
	fresh := resp.header.Get(csrfHeader)
	if resp.status != http.StatusForbidden || fresh == "" || fresh == token {
		return err
	}
	c.setToken(fresh)
	_, err = c.http.do(ctx, op, method, endpoint, body, c.header(fresh))
	return err
}

func (c *RobloxClient) header(token string) http.Header {
	h := http.Header{}
	h.Set("Cookie", ".ROBLOSECURITY="+c.cookie)
	if token != "" {
		h.Set(csrfHeader, token)
	}
	return h
}

// token returns the cached CSRF token, fetching one from the logout
// endpoint when none is cached. The logout call is rejected without a
// token, so the session stays valid.
func (c *RobloxClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.csrf
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	resp, err := c.http.do(ctx, "roblox csrf token", http.MethodPost, c.authURL+"/v2/logout", nil, c.header(""))
	token := resp.header.Get(csrfHeader)
	if token == "" {
		if err == nil {
			err = fmt.Errorf("response carried no csrf token")
		}
		return "", &RequestError{Op: "roblox csrf token", StatusCode: resp.status, Err: err}
	}
	c.setToken(token)
	return token, nil
}

func (c *RobloxClient) setToken(token string) {
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

var (
	userMentionRe = regexp.MustCompile(`<@!?\d+>`)
	channelRe     = regexp.MustCompile(`<#\d+>`)
	customEmojiRe = regexp.MustCompile(`<a?:\w+:\d+>`)
)

// FormatForRoblox strips Discord markup (bold, italics, code ticks,
// mentions and custom emoji) and collapses whitespace. A non-empty title is
// placed on its own paragraph before the text.
func FormatForRoblox(content, title string) string {
	text := strings.NewReplacer("**", "", "*", "", "`", "").Replace(content)
	text = userMentionRe.ReplaceAllString(text, "")
	text = channelRe.ReplaceAllString(text, "")
	text = customEmojiRe.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")

	title = strings.TrimSpace(strings.NewReplacer("**", "", "`", "").Replace(title))
	if title != "" {
		return title + "\n\n" + text
	}
	return text
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
