package files

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/errutil"
	"github.com/small-frappuccino/modwarden/pkg/log"
	"github.com/small-frappuccino/modwarden/pkg/util"
)

// --- Initialization & Persistence ---

func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithPath(util.GetSettingsFilePath())
}

// NewConfigManagerWithPath creates a configuration manager backed by configPath.
func NewConfigManagerWithPath(configPath string) *ConfigManager {
	return &ConfigManager{
		configFilePath: configPath,
		jsonManager:    util.NewJSONManager(configPath),
	}
}

// LoadConfig loads the configuration from file. A missing file yields an empty config.
func (mgr *ConfigManager) LoadConfig() error {
	mgr.mu.Lock()

	loaded := &BotConfig{Guilds: []GuildConfig{}}
	if err := mgr.jsonManager.Load(loaded); err != nil {
		mgr.mu.Unlock()
		return errutil.HandleConfigError("read", mgr.configFilePath, func() error { return err })
	}
	mgr.config = loaded

	if len(mgr.config.Guilds) == 0 {
		log.ApplicationLogger().Info(fmt.Sprintf(LogLoadConfigNoGuilds, mgr.configFilePath))
	}

	dupCount, err := mgr.rebuildGuildIndexLocked("load")
	if err != nil {
		log.ApplicationLogger().Warn("Guild config index rebuild warning", "error", err, "path", mgr.configFilePath)
	}
	mgr.mu.Unlock()

	if dupCount > 0 {
		if saveErr := mgr.SaveConfig(); saveErr != nil {
			return fmt.Errorf("save config after dedupe: %w", saveErr)
		}
		log.ApplicationLogger().Info("Saved config after dedupe", "path", mgr.configFilePath, "duplicates", dupCount)
	}
	return nil
}

// SaveConfig writes the current configuration to file.
func (mgr *ConfigManager) SaveConfig() error {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	if mgr.config == nil {
		return errors.New(ErrCannotSaveNilConfig)
	}
	if mgr.jsonManager == nil {
		return nil
	}

	if err := mgr.jsonManager.Save(mgr.config); err != nil {
		return errutil.HandleConfigError("write", mgr.configFilePath, func() error { return err })
	}

	log.ApplicationLogger().Info(fmt.Sprintf(LogSaveConfigSuccess, mgr.configFilePath))
	return nil
}

// --- Getters ---

// ConfigPath returns the config file path.
func (mgr *ConfigManager) ConfigPath() string { return mgr.configFilePath }

// Config returns the current configuration.
func (mgr *ConfigManager) Config() *BotConfig {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return mgr.config
}

// Runtime returns the runtime settings with defaults applied.
func (mgr *ConfigManager) Runtime() RuntimeConfig {
	if mgr == nil {
		return RuntimeConfig{}.WithDefaults()
	}
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	if mgr.config == nil {
		return RuntimeConfig{}.WithDefaults()
	}
	return mgr.config.Runtime.WithDefaults()
}

// GuildIDs lists configured guild IDs in file order.
func (mgr *ConfigManager) GuildIDs() []string {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	if mgr.config == nil {
		return nil
	}
	ids := make([]string, 0, len(mgr.config.Guilds))
	for _, g := range mgr.config.Guilds {
		if g.GuildID != "" {
			ids = append(ids, g.GuildID)
		}
	}
	return ids
}

// --- Guild Config Management ---

// GuildConfig returns a copy of the configuration for a guild, or nil when absent.
func (mgr *ConfigManager) GuildConfig(guildID string) *GuildConfig {
	if mgr == nil || guildID == "" {
		return nil
	}
	mgr.mu.RLock()
	if mgr.config == nil {
		mgr.mu.RUnlock()
		return nil
	}
	if idx, ok := mgr.guildIndex[guildID]; ok {
		if idx >= 0 && idx < len(mgr.config.Guilds) && mgr.config.Guilds[idx].GuildID == guildID {
			gc := cloneGuild(mgr.config.Guilds[idx])
			mgr.mu.RUnlock()
			return &gc
		}
	}
	mgr.mu.RUnlock()
	mgr.indexMisses.Add(1)
	return mgr.guildConfigWithRebuild(guildID)
}

func (mgr *ConfigManager) guildConfigWithRebuild(guildID string) *GuildConfig {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.config == nil {
		return nil
	}
	if _, err := mgr.rebuildGuildIndexLocked("lookup_miss"); err != nil {
		log.ApplicationLogger().Warn("Guild config index rebuild warning", "guildID", guildID, "error", err)
	}
	if idx, ok := mgr.guildIndex[guildID]; ok {
		gc := cloneGuild(mgr.config.Guilds[idx])
		return &gc
	}
	log.ApplicationLogger().Debug("Guild config not found", "guildID", guildID)
	return nil
}

func (mgr *ConfigManager) rebuildGuildIndexLocked(reason string) (int, error) {
	mgr.indexRebuilds.Add(1)
	if mgr.config == nil {
		mgr.guildIndex = nil
		return 0, nil
	}
	index := make(map[string]int, len(mgr.config.Guilds))
	deduped := make([]GuildConfig, 0, len(mgr.config.Guilds))
	dupCount := 0

	for _, g := range mgr.config.Guilds {
		gid := g.GuildID
		if gid == "" {
			deduped = append(deduped, g)
			continue
		}
		if _, exists := index[gid]; exists {
			dupCount++
			continue
		}
		index[gid] = len(deduped)
		deduped = append(deduped, g)
	}

	if dupCount > 0 {
		mgr.indexDuplicates.Add(uint64(dupCount))
		log.ApplicationLogger().Warn("Duplicate guild configs removed", "reason", reason, "duplicates", dupCount, "remaining", len(deduped))
		mgr.config.Guilds = deduped
	}

	mgr.guildIndex = index
	if dupCount > 0 {
		return dupCount, fmt.Errorf("removed %d duplicate guild configs", dupCount)
	}
	return dupCount, nil
}

// GuildIndexStats returns counters for index rebuilds, misses, and duplicate removals.
func (mgr *ConfigManager) GuildIndexStats() GuildIndexStats {
	if mgr == nil {
		return GuildIndexStats{}
	}
	return GuildIndexStats{
		Rebuilds:   mgr.indexRebuilds.Load(),
		Misses:     mgr.indexMisses.Load(),
		Duplicates: mgr.indexDuplicates.Load(),
	}
}

// AddGuildConfig adds or replaces a guild configuration.
func (mgr *ConfigManager) AddGuildConfig(guildCfg GuildConfig) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.config == nil {
		mgr.config = &BotConfig{Guilds: []GuildConfig{}}
	}
	mgr.config.Guilds = append(slices.DeleteFunc(mgr.config.Guilds, func(g GuildConfig) bool {
		return g.GuildID == guildCfg.GuildID
	}), guildCfg)
	if _, err := mgr.rebuildGuildIndexLocked("add"); err != nil {
		return fmt.Errorf("add guild config: %w", err)
	}
	return nil
}

// RemoveGuildConfig removes a guild configuration.
func (mgr *ConfigManager) RemoveGuildConfig(guildID string) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.config == nil {
		return
	}
	mgr.config.Guilds = slices.DeleteFunc(mgr.config.Guilds, func(g GuildConfig) bool {
		return g.GuildID == guildID
	})
	if _, err := mgr.rebuildGuildIndexLocked("remove"); err != nil {
		log.ApplicationLogger().Warn("Guild config index rebuild warning", "guildID", guildID, "error", err)
	}
}

// UpdateGuildConfig applies fn to the stored guild config and persists the result.
func (mgr *ConfigManager) UpdateGuildConfig(guildID string, fn func(*GuildConfig)) error {
	mgr.mu.Lock()
	if mgr.config == nil {
		mgr.mu.Unlock()
		return ErrGuildNotConfigured
	}
	idx, ok := mgr.guildIndex[guildID]
	if !ok || idx >= len(mgr.config.Guilds) || mgr.config.Guilds[idx].GuildID != guildID {
		mgr.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrGuildNotConfigured, guildID)
	}
	fn(&mgr.config.Guilds[idx])
	mgr.mu.Unlock()
	return mgr.SaveConfig()
}

// UpdateRuntimeConfig applies fn to the stored runtime settings and persists
// them. A failing fn leaves the settings untouched. The returned value has
// defaults applied.
func (mgr *ConfigManager) UpdateRuntimeConfig(fn func(*RuntimeConfig) error) (RuntimeConfig, error) {
	mgr.mu.Lock()
	if mgr.config == nil {
		mgr.config = &BotConfig{}
	}
	next := mgr.config.Runtime
	if err := fn(&next); err != nil {
		mgr.mu.Unlock()
		return RuntimeConfig{}, err
	}
	mgr.config.Runtime = next
	mgr.mu.Unlock()

	if err := mgr.SaveConfig(); err != nil {
		return RuntimeConfig{}, err
	}
	return next.WithDefaults(), nil
}

// --- Guild Detection ---

// GuildChannelLister is the subset of *discordgo.Session used for guild registration.
type GuildChannelLister interface {
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
}

var auditChannelNames = []string{"mod-logs", "modlogs", "mod-log", "audit-log", "audit-logs", "moderation-logs"}

// RegisterGuild creates a default configuration for a guild that has none.
// The audit channel is guessed from common channel names.
func (mgr *ConfigManager) RegisterGuild(session GuildChannelLister, guildID string) error {
	if mgr.GuildConfig(guildID) != nil {
		log.ApplicationLogger().Debug("Guild already configured, skipping", "guildID", guildID)
		return nil
	}
	channels, err := session.GuildChannels(guildID)
	if err != nil {
		return fmt.Errorf(ErrGuildInfoFetchMsg, guildID, err)
	}

	cfg := GuildConfig{
		GuildID:           guildID,
		AllowedRoles:      slices.Clone(DefaultAllowedRoles),
		BlacklistRoleName: DefaultBlacklistRoleName,
	}
	cfg.AuditLogChannelID = findChannelByName(channels, auditChannelNames)

	if err := mgr.AddGuildConfig(cfg); err != nil {
		return err
	}
	log.ApplicationLogger().Info("Guild registered", "guildID", guildID, "auditChannelID", cfg.AuditLogChannelID)
	return mgr.SaveConfig()
}

func findChannelByName(channels []*discordgo.Channel, names []string) string {
	for _, want := range names {
		for _, ch := range channels {
			if ch == nil || ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			if strings.EqualFold(ch.Name, want) {
				return ch.ID
			}
		}
	}
	return ""
}

func cloneGuild(g GuildConfig) GuildConfig {
	g.AllowedRoles = slices.Clone(g.AllowedRoles)
	combos := make([]RoleCombination, len(g.RoleCombinations))
	for i, c := range g.RoleCombinations {
		c.RequiredRoles = slices.Clone(c.RequiredRoles)
		combos[i] = c
	}
	g.RoleCombinations = combos
	return g
}
