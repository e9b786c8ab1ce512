package roblox

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/crosspost"
	"github.com/small-frappuccino/modwarden/pkg/discord/commands/core"
	"github.com/small-frappuccino/modwarden/pkg/discord/platform/platformtest"
	"github.com/small-frappuccino/modwarden/pkg/files"
)

type fakeInteractionAPI struct {
	mu         sync.Mutex
	contents   []string
	deferred   int
	edits      []string
	editEmbeds []*discordgo.MessageEmbed
}

func (f *fakeInteractionAPI) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch resp.Type {
	case discordgo.InteractionResponseDeferredChannelMessageWithSource:
		f.deferred++
	case discordgo.InteractionResponseChannelMessageWithSource:
		if resp.Data != nil {
			f.contents = append(f.contents, resp.Data.Content)
		}
	}
	return nil
}

func (f *fakeInteractionAPI) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if edit.Content != nil {
		f.edits = append(f.edits, *edit.Content)
	}
	if edit.Embeds != nil {
		f.editEmbeds = append(f.editEmbeds, *edit.Embeds...)
	}
	return &discordgo.Message{}, nil
}

func (f *fakeInteractionAPI) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, _ *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

type fakeBans struct {
	mu         sync.Mutex
	ids        map[string]int64
	lookupErr  error
	publishErr error
	published  []crosspost.BanRequest
}

func (f *fakeBans) Configured() bool { return true }

func (f *fakeBans) ResolveUserID(_ context.Context, usernameOrID string) (int64, error) {
	if f.lookupErr != nil {
		return 0, f.lookupErr
	}
	id, ok := f.ids[usernameOrID]
	if !ok {
		return 0, crosspost.ErrUserNotFound
	}
	return id, nil
}

func (f *fakeBans) PublishBan(_ context.Context, req crosspost.BanRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, req)
	return f.publishErr
}

func newRouter(t *testing.T, bans BanPublisher) (*core.CommandRouter, *fakeInteractionAPI) {
	t.Helper()
	p := platformtest.New()
	p.AddRoleDef("g1", "r-mod", "Server Mod")
	p.AddMember("g1", "mod", "r-mod")
	p.AddMember("g1", "u1")

	cm := files.NewConfigManagerWithPath(filepath.Join(t.TempDir(), "settings.json"))
	if err := cm.AddGuildConfig(files.GuildConfig{GuildID: "g1"}); err != nil {
		t.Fatalf("AddGuildConfig: %v", err)
	}
	api := &fakeInteractionAPI{}
	router := core.NewCommandRouter(p, api, cm)
	NewCommands(bans).RegisterCommands(router)
	return router, api
}

func robloxBan(userID string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID, Username: userID}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: "robloxban", Options: opts},
	}}
}

func str(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func integer(name string, value float64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: value}
}

func TestRobloxBanPermanentByUsername(t *testing.T) {
	t.Parallel()
	bans := &fakeBans{ids: map[string]int64{"builder": 987654}}
	router, api := newRouter(t, bans)

	router.Dispatch(robloxBan("mod", str(optTarget, "builder"), str(optReason, "exploiting")))

	bans.mu.Lock()
	if len(bans.published) != 1 || bans.published[0] != (crosspost.BanRequest{UserID: 987654, Reason: "exploiting", Duration: -1}) {
		t.Fatalf("unexpected publish %+v", bans.published)
	}
	bans.mu.Unlock()

	api.mu.Lock()
	defer api.mu.Unlock()
	if api.deferred != 1 {
		t.Fatalf("expected a public deferral, got %d", api.deferred)
	}
	if len(api.editEmbeds) != 1 {
		t.Fatalf("expected confirmation embed, got %+v", api.editEmbeds)
	}
	e := api.editEmbeds[0]
	if e.Title != "✅ Roblox Ban Initiated" {
		t.Fatalf("unexpected title %q", e.Title)
	}
	if e.Fields[0].Value != "builder (ID: 987654)" || e.Fields[1].Value != "Permanent" {
		t.Fatalf("unexpected fields %+v %+v", e.Fields[0], e.Fields[1])
	}
}

func TestRobloxBanTimedByID(t *testing.T) {
	t.Parallel()
	bans := &fakeBans{ids: map[string]int64{"1234": 1234}}
	router, api := newRouter(t, bans)

	router.Dispatch(robloxBan("mod", str(optTarget, "1234"), str(optReason, "spam"), integer(optDuration, 3600)))

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.editEmbeds) != 1 {
		t.Fatalf("expected confirmation embed")
	}
	if got := api.editEmbeds[0].Fields; got[0].Value != "1234" || got[1].Value != "3600s" {
		t.Fatalf("unexpected fields %+v %+v", got[0], got[1])
	}
}

func TestRobloxBanFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		bans *fakeBans
		want string
	}{
		{"unknown user", &fakeBans{ids: map[string]int64{}}, "❌ **Error:** User 'ghost' not found on Roblox."},
		{"lookup status", &fakeBans{lookupErr: &crosspost.RequestError{Op: "lookup", StatusCode: http.StatusTooManyRequests}}, "❌ **Error:** Roblox Users API failed (Status: 429)"},
		{"publish status", &fakeBans{ids: map[string]int64{"ghost": 1}, publishErr: &crosspost.RequestError{Op: "publish", StatusCode: http.StatusUnauthorized}}, "❌ **Failed:** API Error 401"},
	}
	for _, tc := range cases {
		router, api := newRouter(t, tc.bans)
		router.Dispatch(robloxBan("mod", str(optTarget, "ghost"), str(optReason, "r")))

		api.mu.Lock()
		if len(api.edits) != 1 || api.edits[0] != tc.want {
			t.Fatalf("%s: unexpected edits %v", tc.name, api.edits)
		}
		api.mu.Unlock()
	}
}

func TestRobloxBanRejectsZeroDuration(t *testing.T) {
	t.Parallel()
	bans := &fakeBans{ids: map[string]int64{"builder": 1}}
	router, api := newRouter(t, bans)

	router.Dispatch(robloxBan("mod", str(optTarget, "builder"), str(optReason, "r"), integer(optDuration, 0)))

	if len(bans.published) != 0 {
		t.Fatalf("nothing should be published")
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.contents) != 1 || !strings.Contains(api.contents[0], "Invalid option `duration`") {
		t.Fatalf("unexpected reply %v", api.contents)
	}
}

func TestRobloxBanRequiresModerator(t *testing.T) {
	t.Parallel()
	bans := &fakeBans{ids: map[string]int64{"builder": 1}}
	router, _ := newRouter(t, bans)

	router.Dispatch(robloxBan("u1", str(optTarget, "builder"), str(optReason, "r")))
	if len(bans.published) != 0 {
		t.Fatalf("members without a moderator role must not ban")
	}
}
