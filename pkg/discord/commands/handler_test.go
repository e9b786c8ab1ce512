package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/discord/collector"
	"github.com/small-frappuccino/modwarden/pkg/files"
	"github.com/small-frappuccino/modwarden/pkg/moderation"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs []moderation.Kind
	invs []moderation.Invocation
}

func (r *recordingRunner) Run(_ context.Context, kind moderation.Kind, inv moderation.Invocation) moderation.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, kind)
	r.invs = append(r.invs, inv)
	return moderation.Report{Done: true}
}

type staticRuntime files.RuntimeConfig

func (s staticRuntime) Runtime() files.RuntimeConfig { return files.RuntimeConfig(s) }

func message(id, author, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   content,
		Author:    &discordgo.User{ID: author, Username: "name" + author},
	}
}

func TestRouteStartsPrefixWorkflows(t *testing.T) {
	t.Parallel()
	runner := &recordingRunner{}
	mr := NewMessageRouter(context.Background(), collector.New(), runner, staticRuntime{}, func() string { return "bot" })

	inputs := []struct {
		content string
		want    bool
	}{
		{"!ban <@2> yes spam", true},
		{"!KICK", true},
		{"!mute <@2> 1h spam", true},
		{"!ticketblacklist <@2> abuse", true},
		{"!unknown <@2>", false},
		{"ban <@2> yes spam", false},
		{"!", false},
	}
	for idx, in := range inputs {
		if got := mr.Route(message("m", "1", in.content)); got != in.want {
			t.Fatalf("input %d %q: got %v want %v", idx, in.content, got, in.want)
		}
	}
	mr.Wait()

	want := []moderation.Kind{moderation.KindBan, moderation.KindKick, moderation.KindTimeout, moderation.KindTicketBlacklist}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.runs) != len(want) {
		t.Fatalf("unexpected runs %v", runner.runs)
	}
	seen := map[moderation.Kind]bool{}
	for _, k := range runner.runs {
		seen[k] = true
	}
	for _, k := range want {
		if !seen[k] {
			t.Fatalf("missing workflow %s in %v", k, runner.runs)
		}
	}
	inv := runner.invs[0]
	if inv.GuildID != "g1" || inv.ChannelID != "c1" || inv.IssuerID != "1" || inv.Command == nil {
		t.Fatalf("unexpected invocation %+v", inv)
	}
}

func TestRouteCustomPrefix(t *testing.T) {
	t.Parallel()
	runner := &recordingRunner{}
	mr := NewMessageRouter(context.Background(), collector.New(), runner, staticRuntime{CommandPrefix: "?"}, nil)

	if mr.Route(message("m1", "1", "!ban <@2> yes spam")) {
		t.Fatalf("default prefix must not match when a custom one is set")
	}
	if !mr.Route(message("m2", "1", "?kick <@2> spam")) {
		t.Fatalf("custom prefix should start a workflow")
	}
	mr.Wait()
}

func TestRouteIgnoresBotsAndDMs(t *testing.T) {
	t.Parallel()
	runner := &recordingRunner{}
	mr := NewMessageRouter(context.Background(), collector.New(), runner, nil, func() string { return "bot" })

	self := message("m1", "bot", "!ban <@2> yes spam")
	if mr.Route(self) {
		t.Fatalf("own messages must be ignored")
	}
	other := message("m2", "3", "!ban <@2> yes spam")
	other.Author.Bot = true
	if mr.Route(other) {
		t.Fatalf("bot messages must be ignored")
	}
	dm := message("m3", "1", "!ban <@2> yes spam")
	dm.GuildID = ""
	if mr.Route(dm) {
		t.Fatalf("direct messages must not start workflows")
	}
	mr.Wait()
	if len(runner.runs) != 0 {
		t.Fatalf("no workflow expected, got %v", runner.runs)
	}
}

func TestRouteFeedsWaitingCollector(t *testing.T) {
	t.Parallel()
	runner := &recordingRunner{}
	c := collector.New()
	mr := NewMessageRouter(context.Background(), c, runner, nil, nil)

	got := make(chan *discordgo.Message, 1)
	go func() {
		m, err := c.Wait(context.Background(), "c1", "1", 5*time.Second)
		if err != nil {
			t.Errorf("wait: %v", err)
		}
		got <- m
	}()

	deadline := time.Now().Add(2 * time.Second)
	for c.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("waiter never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A command-shaped reply is consumed by the waiting workflow, not routed.
	if !mr.Route(message("m9", "1", "!kick <@5> reason")) {
		t.Fatalf("reply should be consumed")
	}
	if m := <-got; m == nil || m.ID != "m9" {
		t.Fatalf("waiter received %+v", m)
	}
	mr.Wait()
	if len(runner.runs) != 0 {
		t.Fatalf("consumed reply must not start a workflow: %v", runner.runs)
	}
}
