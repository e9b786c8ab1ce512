package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/small-frappuccino/modwarden/pkg/util"
)

// ## Defaults

// DefaultAllowedRoles are the role names allowed to run moderation commands when a guild lists none.
var DefaultAllowedRoles = []string{"Administrator", "Server Mod", "Head Moderator", "Trainee"}

const (
	DefaultCommandPrefix      = "!"
	DefaultBlacklistRoleName  = "Ticket Blacklist"
	DefaultResponseTimeout    = 30 * time.Second
	DefaultEvidenceWindow     = 30 * time.Second
	DefaultEvidenceDelete     = 5 * time.Second
	DefaultTimeoutDelete      = 10 * time.Second
	DefaultLogRetryBackoff    = 2 * time.Second
	DefaultDMRetryBackoff     = 2 * time.Second
	DefaultRoleCheckCooldown  = 60 * time.Second
	DefaultRoleSweepPerSecond = 10
)

// ## Config Types

// Duration is a time.Duration that reads and writes as a Go duration string ("30s").
// Bare numbers are read as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*d = 0
			return nil
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// RoleCombination grants TargetRole to members holding every role in RequiredRoles.
type RoleCombination struct {
	Name          string   `json:"name"`
	RequiredRoles []string `json:"required_roles"`
	TargetRole    string   `json:"target_role"`
	Enabled       bool     `json:"enabled"`
	RemoveOnLoss  bool     `json:"remove_on_loss"`
}

// CrosspostConfig configures announcement mirroring for a guild.
type CrosspostConfig struct {
	UpdatesChannelID string `json:"updates_channel_id,omitempty"`
	GuildedChannelID string `json:"guilded_channel_id,omitempty"`
	GuildedServerID  string `json:"guilded_server_id,omitempty"`
	RobloxGroupID    string `json:"roblox_group_id,omitempty"`
	RobloxUniverseID string `json:"roblox_universe_id,omitempty"`
	RobloxTopic      string `json:"roblox_topic,omitempty"`
	PostToGroupWall  bool   `json:"post_to_group_wall,omitempty"`
}

// Enabled reports whether any mirror target is configured.
func (c CrosspostConfig) Enabled() bool {
	return c.UpdatesChannelID != "" && (c.GuildedChannelID != "" || c.RobloxGroupID != "")
}

// GuildConfig holds the configuration for a specific guild.
type GuildConfig struct {
	GuildID           string            `json:"guild_id"`
	AllowedRoles      []string          `json:"allowed_roles,omitempty"`
	AuditLogChannelID string            `json:"audit_log_channel_id,omitempty"`
	BlacklistRoleName string            `json:"blacklist_role_name,omitempty"`
	EnableAutoRoles   bool              `json:"enable_auto_roles"`
	RoleLogChannelID  string            `json:"role_log_channel_id,omitempty"`
	RoleCombinations  []RoleCombination `json:"role_combinations,omitempty"`
	Crosspost         CrosspostConfig   `json:"crosspost"`
}

// ModeratorRoles returns the configured allow-list or the defaults.
func (g GuildConfig) ModeratorRoles() []string {
	if len(g.AllowedRoles) == 0 {
		return DefaultAllowedRoles
	}
	return g.AllowedRoles
}

// BlacklistRole returns the configured blacklist role name or the default.
func (g GuildConfig) BlacklistRole() string {
	if n := strings.TrimSpace(g.BlacklistRoleName); n != "" {
		return n
	}
	return DefaultBlacklistRoleName
}

// ActiveCombinations returns the enabled role combinations.
func (g GuildConfig) ActiveCombinations() []RoleCombination {
	out := make([]RoleCombination, 0, len(g.RoleCombinations))
	for _, c := range g.RoleCombinations {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// RuntimeConfig holds process-wide tunables.
type RuntimeConfig struct {
	CommandPrefix       string   `json:"command_prefix,omitempty"`
	ResponseTimeout     Duration `json:"response_timeout,omitempty"`
	EvidenceWindow      Duration `json:"evidence_window,omitempty"`
	EvidenceDeleteDelay Duration `json:"evidence_delete_delay,omitempty"`
	TimeoutDeleteDelay  Duration `json:"timeout_delete_delay,omitempty"`
	LogRetryBackoff     Duration `json:"log_retry_backoff,omitempty"`
	DMRetryBackoff      Duration `json:"dm_retry_backoff,omitempty"`
	RoleCheckCooldown   Duration `json:"role_check_cooldown,omitempty"`
	RoleSweepPerSecond  int      `json:"role_sweep_rate,omitempty"`
}

// WithDefaults fills zero fields with the package defaults.
func (r RuntimeConfig) WithDefaults() RuntimeConfig {
	if strings.TrimSpace(r.CommandPrefix) == "" {
		r.CommandPrefix = DefaultCommandPrefix
	}
	setDur := func(d *Duration, def time.Duration) {
		if *d <= 0 {
			*d = Duration(def)
		}
	}
	setDur(&r.ResponseTimeout, DefaultResponseTimeout)
	setDur(&r.EvidenceWindow, DefaultEvidenceWindow)
	setDur(&r.EvidenceDeleteDelay, DefaultEvidenceDelete)
	setDur(&r.TimeoutDeleteDelay, DefaultTimeoutDelete)
	setDur(&r.LogRetryBackoff, DefaultLogRetryBackoff)
	setDur(&r.DMRetryBackoff, DefaultDMRetryBackoff)
	setDur(&r.RoleCheckCooldown, DefaultRoleCheckCooldown)
	if r.RoleSweepPerSecond <= 0 {
		r.RoleSweepPerSecond = DefaultRoleSweepPerSecond
	}
	return r
}

// BotConfig holds the configuration for the bot.
type BotConfig struct {
	Guilds  []GuildConfig `json:"guilds"`
	Runtime RuntimeConfig `json:"runtime"`
}

// ConfigManager handles bot configuration management.
type ConfigManager struct {
	configFilePath string
	config         *BotConfig
	mu             sync.RWMutex
	jsonManager    *util.JSONManager

	guildIndex      map[string]int
	indexRebuilds   atomic.Uint64
	indexMisses     atomic.Uint64
	indexDuplicates atomic.Uint64
}

// GuildIndexStats exposes counters for the guild lookup index.
type GuildIndexStats struct {
	Rebuilds   uint64
	Misses     uint64
	Duplicates uint64
}

// ## Log and error messages

const (
	LogLoadConfigFileNotFound = "Settings file not found at %s; starting with empty config"
	LogLoadConfigNoGuilds     = "No guilds configured in %s"
	LogSaveConfigSuccess      = "Settings saved to %s"
	ErrCannotSaveNilConfig    = "cannot save nil config"
	ErrGuildInfoFetchMsg      = "failed to fetch guild %s: %w"
)

// ## Error Types

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Operation string
	Path      string
	Cause     error
}

func (e ConfigError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("config %s failed for %s", e.Operation, e.Path)
	}
	return fmt.Sprintf("config %s failed for %s: %v", e.Operation, e.Path, e.Cause)
}

func (e ConfigError) Unwrap() error {
	return e.Cause
}

// ErrGuildNotConfigured is returned when a guild has no configuration entry.
var ErrGuildNotConfigured = errors.New("guild not configured")
