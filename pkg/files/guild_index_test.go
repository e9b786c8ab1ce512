package files

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

func newTestConfigManager(guilds []GuildConfig) *ConfigManager {
	return &ConfigManager{
		config: &BotConfig{Guilds: guilds},
	}
}

func TestGuildLookupCountsMisses(t *testing.T) {
	mgr := newTestConfigManager([]GuildConfig{
		{GuildID: "g1", AuditLogChannelID: "audit-1"},
		{GuildID: "g2", AuditLogChannelID: "audit-2"},
	})
	if _, err := mgr.rebuildGuildIndexLocked("test"); err != nil {
		t.Fatalf("rebuild index: %v", err)
	}

	if cfg := mgr.GuildConfig("g2"); cfg == nil || cfg.AuditLogChannelID != "audit-2" {
		t.Fatalf("expected g2 audit channel, got %+v", cfg)
	}
	if cfg := mgr.GuildConfig("g3"); cfg != nil {
		t.Fatalf("expected nil for unconfigured guild, got %+v", cfg)
	}
	if cfg := mgr.GuildConfig(""); cfg != nil {
		t.Fatalf("blank guild ID must not resolve")
	}

	stats := mgr.GuildIndexStats()
	if stats.Misses != 1 {
		t.Fatalf("expected one miss, got %d", stats.Misses)
	}
	if stats.Rebuilds < 2 {
		t.Fatalf("a miss should trigger a rebuild, got %d rebuilds", stats.Rebuilds)
	}
}

func TestAddGuildConfigReplacesModeratorRoles(t *testing.T) {
	mgr := newTestConfigManager([]GuildConfig{
		{GuildID: "g1", AllowedRoles: []string{"Administrator"}},
	})
	if _, err := mgr.rebuildGuildIndexLocked("test"); err != nil {
		t.Fatalf("rebuild index: %v", err)
	}

	if err := mgr.AddGuildConfig(GuildConfig{GuildID: "g1", AllowedRoles: []string{"Warden"}}); err != nil {
		t.Fatalf("replace guild config: %v", err)
	}
	cfg := mgr.GuildConfig("g1")
	if cfg == nil || len(cfg.ModeratorRoles()) != 1 || cfg.ModeratorRoles()[0] != "Warden" {
		t.Fatalf("expected replaced roles, got %+v", cfg)
	}
	if got := len(mgr.GuildIDs()); got != 1 {
		t.Fatalf("replace must not duplicate the guild, have %d", got)
	}

	mgr.RemoveGuildConfig("g1")
	if cfg := mgr.GuildConfig("g1"); cfg != nil {
		t.Fatalf("expected g1 removed, got %+v", cfg)
	}
}

func TestDuplicateGuildsKeepFirstEntry(t *testing.T) {
	mgr := newTestConfigManager([]GuildConfig{
		{GuildID: "g1", AuditLogChannelID: "first"},
		{GuildID: "g1", AuditLogChannelID: "second"},
		{GuildID: "g2"},
	})

	if _, err := mgr.rebuildGuildIndexLocked("test"); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if got := mgr.GuildIDs(); len(got) != 2 {
		t.Fatalf("expected 2 guilds after dedupe, got %v", got)
	}
	if cfg := mgr.GuildConfig("g1"); cfg == nil || cfg.AuditLogChannelID != "first" {
		t.Fatalf("dedupe must keep the first entry, got %+v", cfg)
	}
	if stats := mgr.GuildIndexStats(); stats.Duplicates != 1 {
		t.Fatalf("expected one duplicate, got %d", stats.Duplicates)
	}
}

func TestLoadRewritesDedupedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := BotConfig{
		Guilds: []GuildConfig{
			{GuildID: "g1", BlacklistRoleName: "No Tickets"},
			{GuildID: "g1"},
			{GuildID: "g2"},
		},
	}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	mgr := NewConfigManagerWithPath(path)
	if err := mgr.LoadConfig(); err != nil {
		t.Fatalf("load config: %v", err)
	}

	reloaded := NewConfigManagerWithPath(path)
	if err := reloaded.LoadConfig(); err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if got := reloaded.GuildIDs(); len(got) != 2 {
		t.Fatalf("expected deduped file with 2 guilds, got %v", got)
	}
	if cfg := reloaded.GuildConfig("g1"); cfg == nil || cfg.BlacklistRole() != "No Tickets" {
		t.Fatalf("unexpected g1 after reload: %+v", cfg)
	}
	if stats := reloaded.GuildIndexStats(); stats.Duplicates != 0 {
		t.Fatalf("rewritten file should carry no duplicates, got %d", stats.Duplicates)
	}
}

func TestGuildLookupsDuringRegistration(t *testing.T) {
	mgr := newTestConfigManager([]GuildConfig{
		{GuildID: "g0", RoleCombinations: []RoleCombination{{Name: "verified", RequiredRoles: []string{"A", "B"}, TargetRole: "C", Enabled: true}}},
	})
	if _, err := mgr.rebuildGuildIndexLocked("test"); err != nil {
		t.Fatalf("rebuild index: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				cfg := mgr.GuildConfig("g0")
				if cfg == nil || len(cfg.ActiveCombinations()) != 1 {
					t.Errorf("g0 must stay readable during registration")
					return
				}
				cfg.RoleCombinations[0].RequiredRoles[0] = "mutated"
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 20; i++ {
			_ = mgr.AddGuildConfig(GuildConfig{GuildID: "g" + strconv.Itoa(i)})
		}
	}()
	wg.Wait()

	if got := len(mgr.GuildIDs()); got != 21 {
		t.Fatalf("expected 21 guilds, got %d", got)
	}
	if cfg := mgr.GuildConfig("g0"); cfg.RoleCombinations[0].RequiredRoles[0] != "A" {
		t.Fatalf("lookups must return copies, stored rule changed to %v", cfg.RoleCombinations[0].RequiredRoles)
	}
}
