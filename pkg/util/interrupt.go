package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals stop the bot.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// WaitForInterrupt blocks until a shutdown signal arrives or ctx is done.
// It returns the signal, or nil when ctx ended the wait.
func WaitForInterrupt(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, ShutdownSignals...)
	defer signal.Stop(ch)
	return waitForSignal(ctx, ch)
}

func waitForSignal(ctx context.Context, ch <-chan os.Signal) os.Signal {
	select {
	case sig := <-ch:
		return sig
	case <-ctx.Done():
		return nil
	}
}
