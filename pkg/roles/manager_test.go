package roles

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform/platformtest"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/storage"
)

type guildSettings map[string]*files.GuildConfig

func (g guildSettings) GuildConfig(id string) *files.GuildConfig { return g[id] }

func newFixture(t *testing.T, snapshots Snapshots) (*Manager, *platformtest.Fake, guildSettings) {
	t.Helper()
	p := platformtest.New()
	p.AddRoleDef("g1", "r-member", "Member")
	p.AddRoleDef("g1", "r-verified", "Verified")
	p.AddRoleDef("g1", "r-trusted", "Trusted")
	settings := guildSettings{"g1": {
		GuildID:          "g1",
		EnableAutoRoles:  true,
		RoleLogChannelID: "role-log",
		RoleCombinations: []files.RoleCombination{trusted},
	}}
	m := NewManager(p, settings, snapshots, 1000)
	return m, p, settings
}

func TestApplyGrantsAndLogs(t *testing.T) {
	t.Parallel()
	m, p, _ := newFixture(t, nil)
	member := p.AddMember("g1", "u1", "r-member", "r-verified")

	res, err := m.Apply(context.Background(), "g1", member, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Added) != 1 || res.Added[0] != "Trusted" || len(res.Removed) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	adds := p.CallsTo("AddRole")
	if len(adds) != 1 || adds[0].RoleID != "r-trusted" || adds[0].UserID != "u1" {
		t.Fatalf("unexpected AddRole calls %+v", adds)
	}
	logs := p.CallsTo("SendComplex")
	if len(logs) != 1 || logs[0].ChannelID != "role-log" {
		t.Fatalf("expected one role log post, got %+v", logs)
	}
	if title := logs[0].Send.Embeds[0].Title; title != "🤖 Automatic Role Update" {
		t.Fatalf("unexpected embed title %q", title)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()
	m, p, _ := newFixture(t, nil)
	member := p.AddMember("g1", "u1", "r-member", "r-verified", "r-trusted")

	res, err := m.Apply(context.Background(), "g1", member, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Changed() {
		t.Fatalf("no change expected, got %+v", res)
	}
	if n := len(p.Calls()); n != 0 {
		t.Fatalf("expected no API calls, got %d", n)
	}
}

func TestApplyRevokesOnLoss(t *testing.T) {
	t.Parallel()
	m, p, _ := newFixture(t, nil)
	member := p.AddMember("g1", "u1", "r-member", "r-trusted")

	res, err := m.Apply(context.Background(), "g1", member, []string{"r-member", "r-verified", "r-trusted"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Removed) != 1 || res.Removed[0] != "Trusted" {
		t.Fatalf("unexpected result %+v", res)
	}
	removes := p.CallsTo("RemoveRole")
	if len(removes) != 1 || removes[0].Reason != "Auto-role removal: lost Verified" {
		t.Fatalf("unexpected RemoveRole calls %+v", removes)
	}
}

func TestApplyDisabledAndInFlight(t *testing.T) {
	t.Parallel()
	m, p, settings := newFixture(t, nil)
	member := p.AddMember("g1", "u1", "r-member", "r-verified")

	if !m.begin("g1/u1") {
		t.Fatalf("guard should be free")
	}
	res, err := m.Apply(context.Background(), "g1", member, nil)
	if err != nil || !res.Skipped {
		t.Fatalf("concurrent evaluation must be skipped: %+v err=%v", res, err)
	}
	m.end("g1/u1")

	settings["g1"].EnableAutoRoles = false
	if _, err := m.Apply(context.Background(), "g1", member, nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if n := len(p.CallsTo("AddRole")); n != 0 {
		t.Fatalf("no roles should be added, got %d", n)
	}
}

func TestSweepSkipsBots(t *testing.T) {
	t.Parallel()
	m, p, _ := newFixture(t, nil)
	p.AddMember("g1", "u1", "r-member", "r-verified")
	p.AddMember("g1", "u2", "r-member")
	p.AddMember("g1", "u3", "r-member", "r-verified", "r-trusted")
	bot := p.AddMember("g1", "u4", "r-member", "r-verified")
	bot.User.Bot = true

	rep, err := m.Sweep(context.Background(), "g1")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep != (SweepReport{Processed: 3, Updated: 1, Errors: 0}) {
		t.Fatalf("unexpected report %+v", rep)
	}
	adds := p.CallsTo("AddRole")
	if len(adds) != 1 || adds[0].UserID != "u1" {
		t.Fatalf("only u1 should be granted, got %+v", adds)
	}
}

func TestSweepCancelled(t *testing.T) {
	t.Parallel()
	m, p, _ := newFixture(t, nil)
	p.AddMember("g1", "u1", "r-member", "r-verified")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Sweep(ctx, "g1"); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestHandleMemberUpdateUsesSnapshots(t *testing.T) {
	t.Parallel()
	store := storage.NewStore(filepath.Join(t.TempDir(), "roles.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m, p, _ := newFixture(t, store)
	member := p.AddMember("g1", "u1", "r-member", "r-trusted")
	member.GuildID = "g1"
	if err := store.UpsertMemberRoles("g1", "u1", []string{"r-member", "r-verified", "r-trusted"}, m.now()); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	m.HandleMemberUpdate(nil, &discordgo.GuildMemberUpdate{Member: member})

	if n := len(p.CallsTo("RemoveRole")); n != 1 {
		t.Fatalf("snapshot should reveal the lost role, got %d removals", n)
	}
	roles, ok, err := store.GetMemberRoles("g1", "u1")
	if err != nil || !ok {
		t.Fatalf("snapshot missing: ok=%v err=%v", ok, err)
	}
	slices.Sort(roles)
	if !slices.Equal(roles, []string{"r-member"}) {
		t.Fatalf("snapshot should hold the roles after the update, got %v", roles)
	}

	// An update that changes nothing relative to the snapshot is ignored.
	m.HandleMemberUpdate(nil, &discordgo.GuildMemberUpdate{Member: &discordgo.Member{GuildID: "g1", User: member.User, Roles: []string{"r-member"}}})
	if n := len(p.Calls()); n != 2 {
		t.Fatalf("expected no further calls, got %d total", n)
	}
}

func TestStatusCapsLines(t *testing.T) {
	t.Parallel()
	m, p, settings := newFixture(t, nil)
	p.AddMember("g1", "u1", "r-member")
	for i := 0; i < 6; i++ {
		settings["g1"].RoleCombinations = append(settings["g1"].RoleCombinations, trusted)
	}
	lines, err := m.Status(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(lines) != 5 || lines[0] != "⏳ **Trusted**: Need `Verified`" {
		t.Fatalf("unexpected lines %v", lines)
	}
}
