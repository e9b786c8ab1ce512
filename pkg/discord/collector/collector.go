// Package collector implements one-shot reply waits as a suspension table
// keyed by (channel, author). The message-create dispatcher offers every
// inbound message to Dispatch before routing it as a command.
package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrTimeout is returned by Wait when no qualifying message arrived in time.
var ErrTimeout = errors.New("response timeout")

type key struct {
	channelID string
	authorID  string
}

type waiter struct {
	ch chan *discordgo.Message
}

// Collector holds pending waits. The zero value is not usable; call New.
type Collector struct {
	mu      sync.Mutex
	waiters map[key][]*waiter
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{waiters: make(map[key][]*waiter)}
}

// Wait blocks until authorID posts in channelID, the timeout elapses or ctx ends.
// Concurrent waits on the same key are served in registration order.
func (c *Collector) Wait(ctx context.Context, channelID, authorID string, timeout time.Duration) (*discordgo.Message, error) {
	return c.WaitAfter(ctx, channelID, authorID, timeout, nil)
}

// WaitAfter registers the wait, runs send, then blocks like Wait. A reply
// dispatched while send is still running is delivered to this wait.
func (c *Collector) WaitAfter(ctx context.Context, channelID, authorID string, timeout time.Duration, send func()) (*discordgo.Message, error) {
	k := key{channelID: channelID, authorID: authorID}
	w := &waiter{ch: make(chan *discordgo.Message, 1)}

	c.mu.Lock()
	c.waiters[k] = append(c.waiters[k], w)
	c.mu.Unlock()

	if send != nil {
		send()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-w.ch:
		return m, nil
	case <-timer.C:
		if m, ok := c.cancel(k, w); ok {
			return m, nil
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		if m, ok := c.cancel(k, w); ok {
			return m, nil
		}
		return nil, ctx.Err()
	}
}

// cancel removes w. When Dispatch already claimed it, the delivered message is returned.
func (c *Collector) cancel(k key, w *waiter) (*discordgo.Message, bool) {
	c.mu.Lock()
	list := c.waiters[k]
	for i, cand := range list {
		if cand == w {
			c.removeLocked(k, i)
			c.mu.Unlock()
			return nil, false
		}
	}
	c.mu.Unlock()
	return <-w.ch, true
}

func (c *Collector) removeLocked(k key, i int) {
	list := c.waiters[k]
	list = append(list[:i], list[i+1:]...)
	if len(list) == 0 {
		delete(c.waiters, k)
		return
	}
	c.waiters[k] = list
}

// Dispatch hands m to the oldest waiter registered for its (channel, author).
// It reports whether the message was consumed.
func (c *Collector) Dispatch(m *discordgo.Message) bool {
	if m == nil || m.Author == nil {
		return false
	}
	k := key{channelID: m.ChannelID, authorID: m.Author.ID}

	c.mu.Lock()
	list := c.waiters[k]
	if len(list) == 0 {
		c.mu.Unlock()
		return false
	}
	w := list[0]
	c.removeLocked(k, 0)
	c.mu.Unlock()

	w.ch <- m
	return true
}

// Pending returns the number of registered waits.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.waiters {
		n += len(l)
	}
	return n
}
