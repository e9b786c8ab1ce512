package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func msg(id, channelID, authorID string) *discordgo.Message {
	return &discordgo.Message{ID: id, ChannelID: channelID, Author: &discordgo.User{ID: authorID}}
}

func waitForPending(t *testing.T, c *Collector, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for c.Pending() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d pending waits, got %d", n, c.Pending())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWaitReceivesMatchingMessage(t *testing.T) {
	t.Parallel()
	c := New()
	done := make(chan *discordgo.Message, 1)
	go func() {
		m, err := c.Wait(context.Background(), "c1", "u1", time.Second)
		if err != nil {
			t.Errorf("wait: %v", err)
		}
		done <- m
	}()
	waitForPending(t, c, 1)

	if c.Dispatch(msg("x", "c1", "u2")) {
		t.Fatalf("other author must not be consumed")
	}
	if c.Dispatch(msg("y", "c2", "u1")) {
		t.Fatalf("other channel must not be consumed")
	}
	if !c.Dispatch(msg("z", "c1", "u1")) {
		t.Fatalf("matching message should be consumed")
	}
	if got := <-done; got == nil || got.ID != "z" {
		t.Fatalf("unexpected message %+v", got)
	}
	if c.Dispatch(msg("again", "c1", "u1")) {
		t.Fatalf("first match wins; registration must be gone")
	}
	if c.Pending() != 0 {
		t.Fatalf("expected empty table")
	}
}

func TestWaitAfterCatchesReplyDuringSend(t *testing.T) {
	t.Parallel()
	c := New()
	consumed := false

	m, err := c.WaitAfter(context.Background(), "c1", "u1", time.Second, func() {
		consumed = c.Dispatch(msg("fast", "c1", "u1"))
	})
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !consumed || m == nil || m.ID != "fast" {
		t.Fatalf("reply sent before the prompt returned was lost: consumed=%v msg=%+v", consumed, m)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected empty table")
	}
}

func TestWaitTimesOut(t *testing.T) {
	t.Parallel()
	c := New()
	start := time.Now()
	_, err := c.Wait(context.Background(), "c1", "u1", 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("returned before deadline")
	}
	if c.Pending() != 0 {
		t.Fatalf("timed out registration must be removed")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Wait(ctx, "c", "u", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConcurrentWaitsAreFIFO(t *testing.T) {
	t.Parallel()
	c := New()
	first := make(chan string, 1)
	second := make(chan string, 1)

	go func() {
		m, _ := c.Wait(context.Background(), "c", "u", time.Second)
		first <- m.ID
	}()
	waitForPending(t, c, 1)
	go func() {
		m, _ := c.Wait(context.Background(), "c", "u", time.Second)
		second <- m.ID
	}()
	waitForPending(t, c, 2)

	c.Dispatch(msg("a", "c", "u"))
	c.Dispatch(msg("b", "c", "u"))
	if got := <-first; got != "a" {
		t.Fatalf("first waiter got %q", got)
	}
	if got := <-second; got != "b" {
		t.Fatalf("second waiter got %q", got)
	}
}

func TestIndependentWorkflowsDoNotBlockEachOther(t *testing.T) {
	t.Parallel()
	c := New()
	res := make(chan string, 2)
	for _, user := range []string{"u1", "u2"} {
		go func(u string) {
			m, err := c.Wait(context.Background(), "c", u, time.Second)
			if err != nil {
				res <- "err"
				return
			}
			res <- m.Author.ID
		}(user)
	}
	waitForPending(t, c, 2)
	c.Dispatch(msg("2", "c", "u2"))
	if got := <-res; got != "u2" {
		t.Fatalf("expected u2 to resume first, got %q", got)
	}
	c.Dispatch(msg("1", "c", "u1"))
	if got := <-res; got != "u1" {
		t.Fatalf("expected u1, got %q", got)
	}
}

func TestDispatchIgnoresNil(t *testing.T) {
	c := New()
	if c.Dispatch(nil) || c.Dispatch(&discordgo.Message{}) {
		t.Fatalf("nil message or author must not be consumed")
	}
}
