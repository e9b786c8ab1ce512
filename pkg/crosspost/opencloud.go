package crosspost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRobloxUsersURL = "https://users.roblox.com"
	defaultRobloxAPIsURL  = "https://apis.roblox.com"

	// PermanentBan is the Duration value the game server treats as permanent.
	PermanentBan = -1
)

// ErrUserNotFound is returned when a username resolves to no Roblox account.
var ErrUserNotFound = errors.New("roblox user not found")

// OpenCloudConfig configures an OpenCloudClient.
type OpenCloudConfig struct {
	APIKey     string
	UniverseID string
	Topic      string
	UsersURL   string
	APIsURL    string
	Timeout    time.Duration
	PerSecond  float64
}

// OpenCloudClient resolves usernames and publishes ban requests to the
// experience's messaging topic.
type OpenCloudClient struct {
	http       httpClient
	apiKey     string
	universeID string
	topic      string
	usersURL   string
	apisURL    string
}

// BanRequest is the message consumed by the game servers.
type BanRequest struct {
	UserID   int64  `json:"UserId"`
	Reason   string `json:"Reason"`
	Duration int64  `json:"Duration"`
}

// NewOpenCloudClient returns a closed client; call Open before use.
func NewOpenCloudClient(cfg OpenCloudConfig) *OpenCloudClient {
	return &OpenCloudClient{
		http:       newHTTPClient(cfg.Timeout, cfg.PerSecond),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		universeID: strings.TrimSpace(cfg.UniverseID),
		topic:      strings.TrimSpace(cfg.Topic),
		usersURL:   trimBase(cfg.UsersURL, defaultRobloxUsersURL),
		apisURL:    trimBase(cfg.APIsURL, defaultRobloxAPIsURL),
	}
}

// Configured reports whether key, universe and topic are all set.
func (c *OpenCloudClient) Configured() bool {
	return c != nil && c.apiKey != "" && c.universeID != "" && c.topic != ""
}

func (c *OpenCloudClient) Open()  { c.http.open() }
func (c *OpenCloudClient) Close() { c.http.close() }

// ResolveUserID accepts a numeric user ID or a username. Usernames are
// looked up with banned accounts excluded.
func (c *OpenCloudClient) ResolveUserID(ctx context.Context, usernameOrID string) (int64, error) {
	usernameOrID = strings.TrimSpace(usernameOrID)
	if id, err := strconv.ParseInt(usernameOrID, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	if usernameOrID == "" {
		return 0, ErrUserNotFound
	}

	body := map[string]any{
		"usernames":          []string{usernameOrID},
		"excludeBannedUsers": true,
	}
	resp, err := c.http.do(ctx, "roblox resolve username", http.MethodPost, c.usersURL+"/v1/usernames/users", body, nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Data []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return 0, &RequestError{Op: "roblox resolve username", StatusCode: resp.status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Data) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUserNotFound, usernameOrID)
	}
	return out.Data[0].ID, nil
}

// PublishBan sends req to the configured messaging topic. The topic payload
// is the JSON-encoded request carried as a string in the "message" field.
func (c *OpenCloudClient) PublishBan(ctx context.Context, req BanRequest) error {
	encoded, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode ban request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/messaging-service/v1/universes/%s/topics/%s/publish",
		c.apisURL, url.PathEscape(c.universeID), url.PathEscape(c.topic))
	header := http.Header{}
	header.Set("x-api-key", c.apiKey)
	_, err = c.http.do(ctx, "roblox publish ban", http.MethodPost, endpoint, map[string]string{"message": string(encoded)}, header)
	return err
}
