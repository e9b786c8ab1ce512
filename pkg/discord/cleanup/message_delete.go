// Package cleanup removes transient chat messages such as collected evidence.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/small-frappuccino/modwarden/pkg/discord/platform"
	"github.com/small-frappuccino/modwarden/pkg/log"
)

// DeleteMode controls how messages are removed.
type DeleteMode int

const (
	// DeleteModeBulkPreferred uses bulk deletion when the messenger supports it.
	DeleteModeBulkPreferred DeleteMode = iota
	// DeleteModeSingleOnly deletes each message individually.
	DeleteModeSingleOnly
)

// BulkDeleter is implemented by messengers that can remove many messages in one call.
type BulkDeleter interface {
	BulkDelete(ctx context.Context, channelID string, messageIDs []string) error
}

// DeleteOptions configures deletion behavior.
type DeleteOptions struct {
	Mode          DeleteMode
	OnDeleteError func(messageID string, err error)
}

// DeleteMessages removes messages from a channel, returning deleted and failed counts.
func DeleteMessages(ctx context.Context, m platform.Messenger, channelID string, messageIDs []string, opts DeleteOptions) (int, int) {
	if m == nil || channelID == "" || len(messageIDs) == 0 {
		return 0, 0
	}

	bulk, ok := m.(BulkDeleter)
	if opts.Mode == DeleteModeSingleOnly || !ok {
		return deleteSingle(ctx, m, channelID, messageIDs, opts.OnDeleteError)
	}
	return deleteBulkPreferred(ctx, m, bulk, channelID, messageIDs, opts.OnDeleteError)
}

func deleteSingle(ctx context.Context, m platform.Messenger, channelID string, messageIDs []string, onError func(string, error)) (int, int) {
	deleted := 0
	failed := 0
	for _, id := range messageIDs {
		if id == "" {
			continue
		}
		if err := m.DeleteMessage(ctx, channelID, id); err != nil {
			failed++
			if onError != nil {
				onError(id, err)
			}
			continue
		}
		deleted++
	}
	return deleted, failed
}

func deleteBulkPreferred(ctx context.Context, m platform.Messenger, bulk BulkDeleter, channelID string, messageIDs []string, onError func(string, error)) (int, int) {
	deleted := 0
	failed := 0
	for _, chunk := range chunkStrings(messageIDs, 100) {
		if len(chunk) == 1 {
			d, f := deleteSingle(ctx, m, channelID, chunk, onError)
			deleted += d
			failed += f
			continue
		}
		if err := bulk.BulkDelete(ctx, channelID, chunk); err != nil {
			failed += len(chunk)
			if onError != nil {
				for _, id := range chunk {
					onError(id, err)
				}
			}
			continue
		}
		deleted += len(chunk)
	}
	return deleted, failed
}

func chunkStrings(values []string, size int) [][]string {
	if size <= 0 {
		return nil
	}
	var out [][]string
	for len(values) > 0 {
		if len(values) <= size {
			out = append(out, values)
			break
		}
		out = append(out, values[:size])
		values = values[size:]
	}
	return out
}

// Scheduler deletes messages after a delay without blocking the caller.
// Failures are logged and otherwise ignored.
type Scheduler struct {
	messenger platform.Messenger
	after     func(d time.Duration) <-chan time.Time
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewScheduler returns a Scheduler deleting through m.
func NewScheduler(m platform.Messenger) *Scheduler {
	return &Scheduler{messenger: m, after: time.After, logger: log.DiscordLogger()}
}

// DeleteAfter removes messageIDs from channelID once delay has elapsed.
// Cancelling ctx abandons the pending deletion.
func (s *Scheduler) DeleteAfter(ctx context.Context, channelID string, messageIDs []string, delay time.Duration) {
	if s == nil || len(messageIDs) == 0 {
		return
	}
	ids := append([]string(nil), messageIDs...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-s.after(delay):
		}
		_, failed := DeleteMessages(context.WithoutCancel(ctx), s.messenger, channelID, ids, DeleteOptions{
			Mode: DeleteModeSingleOnly,
			OnDeleteError: func(id string, err error) {
				s.logger.Debug("Evidence cleanup failed", "channelID", channelID, "messageID", id, "error", err)
			},
		})
		if failed > 0 {
			s.logger.Info("Some evidence messages could not be deleted", "channelID", channelID, "failed", failed)
		}
	}()
}

// Wait blocks until every scheduled deletion has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
