// Package errutil logs failures of Discord and configuration operations
// through one process-wide error logger.
package errutil

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modwarden/pkg/log"
)

var logger atomic.Pointer[slog.Logger]

// InitializeGlobalErrorHandler sets the logger used by the helpers below.
// The last non-nil logger wins.
func InitializeGlobalErrorHandler(l *slog.Logger) error {
	if l == nil {
		return fmt.Errorf("nil logger provided")
	}
	logger.Store(l)
	return nil
}

func current() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return log.ErrorLoggerRaw()
}

// HandleDiscordError runs fn and logs a failure as a Discord error, with the
// HTTP status and JSON error code when the failure came from the REST API.
// The error is returned unmodified.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	attrs := []any{"operation", operation, "error", err}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Response != nil {
			attrs = append(attrs, "status", rest.Response.StatusCode)
		}
		if rest.Message != nil {
			attrs = append(attrs, "code", rest.Message.Code)
		}
	}
	current().Error("Discord operation failed", attrs...)
	return err
}

// HandleConfigError runs fn and logs a failure as a configuration error, wrapping it with the operation and path.
func HandleConfigError(operation, path string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	current().Error("Config operation failed", "operation", operation, "path", path, "error", err)
	return fmt.Errorf("config %s %s: %w", operation, path, err)
}
