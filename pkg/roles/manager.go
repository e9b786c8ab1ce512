package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/log"
	"golang.org/x/time/rate"
)

// ErrDisabled is returned when automatic roles are off for a guild.
var ErrDisabled = errors.New("automatic role management is disabled")

const membersPageSize = 1000

// Settings resolves per-guild configuration.
type Settings interface {
	GuildConfig(guildID string) *files.GuildConfig
}

// Snapshots stores the last known role IDs of each member.
type Snapshots interface {
	GetMemberRoles(guildID, userID string) ([]string, bool, error)
	UpsertMemberRoles(guildID, userID string, roles []string, updatedAt time.Time) error
}

// Result summarises one Apply call.
type Result struct {
	Added   []string
	Removed []string
	Errors  int
	// Skipped is set when another evaluation for the same member was in flight.
	Skipped bool
}

// Changed reports whether any role was granted or revoked.
func (r Result) Changed() bool { return len(r.Added)+len(r.Removed) > 0 }

// SweepReport summarises a guild-wide check.
type SweepReport struct {
	Processed int
	Updated   int
	Errors    int
}

// Manager applies role combinations to members.
type Manager struct {
	platform  platform.Platform
	settings  Settings
	snapshots Snapshots
	limiter   *rate.Limiter
	now       func() time.Time
	logger    *slog.Logger

	mu         sync.Mutex
	processing map[string]struct{}
}

// NewManager creates a Manager. snapshots may be nil. Sweeps evaluate at most perSecond members per second.
func NewManager(p platform.Platform, settings Settings, snapshots Snapshots, perSecond int) *Manager {
	if perSecond <= 0 {
		perSecond = files.DefaultRoleSweepPerSecond
	}
	return &Manager{
		platform:   p,
		settings:   settings,
		snapshots:  snapshots,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		now:        time.Now,
		logger:     log.DiscordLogger().With("component", "roles"),
		processing: make(map[string]struct{}),
	}
}

// Combinations returns every configured combination for a guild.
func (m *Manager) Combinations(guildID string) []files.RoleCombination {
	gc := m.guild(guildID)
	if gc == nil {
		return nil
	}
	return gc.RoleCombinations
}

// Enabled reports whether automatic roles are on for a guild.
func (m *Manager) Enabled(guildID string) bool {
	gc := m.guild(guildID)
	return gc != nil && gc.EnableAutoRoles
}

func (m *Manager) guild(guildID string) *files.GuildConfig {
	if m.settings == nil {
		return nil
	}
	return m.settings.GuildConfig(guildID)
}

// HandleMemberUpdate is the discordgo GuildMemberUpdate handler.
func (m *Manager) HandleMemberUpdate(_ *discordgo.Session, u *discordgo.GuildMemberUpdate) {
	if u == nil || u.Member == nil || u.User == nil || u.User.Bot {
		return
	}
	var before []string
	known := false
	if u.BeforeUpdate != nil {
		before, known = u.BeforeUpdate.Roles, true
	} else if m.snapshots != nil {
		roles, ok, err := m.snapshots.GetMemberRoles(u.GuildID, u.User.ID)
		if err != nil {
			m.logger.Warn("Failed to read role snapshot", "guildID", u.GuildID, "userID", u.User.ID, "error", err)
		}
		before, known = roles, ok
	}
	if known && sameSet(before, u.Roles) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := m.Apply(ctx, u.GuildID, u.Member, before); err != nil && !errors.Is(err, ErrDisabled) {
		m.logger.Error("Error processing role update", "guildID", u.GuildID, "userID", u.User.ID, "error", err)
	}
}

// Apply evaluates the guild's combinations for member, whose previous role IDs
// are before (nil when unknown), and applies the resulting changes.
func (m *Manager) Apply(ctx context.Context, guildID string, member *discordgo.Member, before []string) (Result, error) {
	var res Result
	if member == nil || member.User == nil {
		return res, fmt.Errorf("apply roles: member is nil")
	}
	gc := m.guild(guildID)
	if gc == nil || !gc.EnableAutoRoles {
		return res, ErrDisabled
	}

	key := guildID + "/" + member.User.ID
	if !m.begin(key) {
		res.Skipped = true
		return res, nil
	}
	defer m.end(key)

	guildRoles, err := m.platform.GuildRoles(ctx, guildID)
	if err != nil {
		return res, fmt.Errorf("list guild roles: %w", err)
	}
	current := slices.Clone(member.Roles)
	changes := Evaluate(gc.RoleCombinations, platform.RoleNames(guildRoles, before), platform.RoleNames(guildRoles, current))

	for _, ch := range changes {
		role := roleByName(guildRoles, ch.Role)
		if role == nil {
			m.logger.Warn("Target role not found", "guildID", guildID, "role", ch.Role, "combination", ch.Combination)
			continue
		}
		if ch.Grant {
			reason := "Auto-role: member holds every required role for " + ch.Combination
			if err := m.platform.AddRole(ctx, guildID, member.User.ID, role.ID, reason); err != nil {
				m.logger.Error("Failed to add role", "guildID", guildID, "userID", member.User.ID, "role", role.Name, "error", err)
				res.Errors++
				continue
			}
			current = append(current, role.ID)
			res.Added = append(res.Added, role.Name)
			m.logger.Info("Added role", "guildID", guildID, "userID", member.User.ID, "role", role.Name, "combination", ch.Combination)
			continue
		}

		reason := "Auto-role removal: lost " + strings.Join(ch.Lost, ", ")
		if err := m.platform.RemoveRole(ctx, guildID, member.User.ID, role.ID, reason); err != nil {
			m.logger.Error("Failed to remove role", "guildID", guildID, "userID", member.User.ID, "role", role.Name, "error", err)
			res.Errors++
			continue
		}
		current = slices.DeleteFunc(current, func(id string) bool { return id == role.ID })
		res.Removed = append(res.Removed, role.Name)
		m.logger.Info("Removed role", "guildID", guildID, "userID", member.User.ID, "role", role.Name, "combination", ch.Combination, "lost", ch.Lost)
	}

	if m.snapshots != nil {
		if err := m.snapshots.UpsertMemberRoles(guildID, member.User.ID, current, m.now()); err != nil {
			m.logger.Warn("Failed to store role snapshot", "guildID", guildID, "userID", member.User.ID, "error", err)
		}
	}
	if res.Changed() {
		m.logChanges(ctx, gc, member, res)
	}
	return res, nil
}

// Sweep evaluates every non-bot member of a guild, paced by the manager's rate limiter.
func (m *Manager) Sweep(ctx context.Context, guildID string) (SweepReport, error) {
	var rep SweepReport
	if !m.Enabled(guildID) {
		return rep, ErrDisabled
	}

	after := ""
	for {
		page, err := m.platform.Members(ctx, guildID, after, membersPageSize)
		if err != nil {
			return rep, fmt.Errorf("list members: %w", err)
		}
		for _, member := range page {
			if member == nil || member.User == nil {
				continue
			}
			after = member.User.ID
			if member.User.Bot {
				continue
			}
			if err := m.limiter.Wait(ctx); err != nil {
				return rep, err
			}
			res, err := m.Apply(ctx, guildID, member, nil)
			if err != nil {
				m.logger.Error("Error checking member", "guildID", guildID, "userID", member.User.ID, "error", err)
				rep.Errors++
				continue
			}
			rep.Processed++
			rep.Errors += res.Errors
			if res.Changed() {
				rep.Updated++
			}
		}
		if len(page) < membersPageSize {
			break
		}
	}
	m.logger.Info("Role sweep completed", "guildID", guildID, "processed", rep.Processed, "updated", rep.Updated, "errors", rep.Errors)
	return rep, nil
}

// Status returns one line per active combination (at most 5) describing where the member stands.
func (m *Manager) Status(ctx context.Context, guildID, userID string) ([]string, error) {
	gc := m.guild(guildID)
	if gc == nil {
		return nil, ErrDisabled
	}
	held, err := platform.MemberRoleNames(ctx, m.platform, guildID, userID)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, c := range gc.ActiveCombinations() {
		if len(lines) == 5 {
			break
		}
		lines = append(lines, StatusLine(c, held))
	}
	return lines, nil
}

func (m *Manager) logChanges(ctx context.Context, gc *files.GuildConfig, member *discordgo.Member, res Result) {
	if gc.RoleLogChannelID == "" {
		return
	}
	embed := ChangeEmbed(member, res.Added, res.Removed, m.now())
	if _, err := m.platform.SendComplex(ctx, gc.RoleLogChannelID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}); err != nil {
		m.logger.Warn("Failed to log role changes", "guildID", gc.GuildID, "channelID", gc.RoleLogChannelID, "error", err)
	}
}

func (m *Manager) begin(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.processing[key]; busy {
		return false
	}
	m.processing[key] = struct{}{}
	return true
}

func (m *Manager) end(key string) {
	m.mu.Lock()
	delete(m.processing, key)
	m.mu.Unlock()
}

func roleByName(roles []*discordgo.Role, name string) *discordgo.Role {
	for _, r := range roles {
		if r != nil && strings.EqualFold(r.Name, strings.TrimSpace(name)) {
			return r
		}
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}
