package errutil

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logger.Load()
	t.Cleanup(func() { logger.Store(prev) })
	if err := InitializeGlobalErrorHandler(slog.New(slog.NewTextHandler(&buf, nil))); err != nil {
		t.Fatalf("init: %v", err)
	}
	return &buf
}

func TestInitializeRejectsNilLogger(t *testing.T) {
	if err := InitializeGlobalErrorHandler(nil); err == nil {
		t.Fatalf("expected nil logger to be rejected")
	}
	if HandleDiscordError("x", nil) == nil || HandleConfigError("x", "p", nil) == nil {
		t.Fatalf("nil functions must be reported")
	}
}

func TestHandleDiscordErrorAddsRESTDetail(t *testing.T) {
	buf := captureLogs(t)

	rest := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions, Message: "Missing Permissions"},
	}
	wrapped := fmt.Errorf("ban: %w", rest)
	if err := HandleDiscordError("ban", func() error { return wrapped }); err != wrapped {
		t.Fatalf("discord error should be returned unmodified, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "operation=ban") || !strings.Contains(out, "status=403") || !strings.Contains(out, "code=50013") {
		t.Fatalf("missing REST detail: %q", out)
	}

	if HandleDiscordError("noop", func() error { return nil }) != nil {
		t.Fatalf("success should pass through")
	}
}

func TestHandleConfigErrorWraps(t *testing.T) {
	buf := captureLogs(t)

	base := errors.New("permission denied")
	err := HandleConfigError("write", "/etc/modwarden/settings.json", func() error { return base })
	if !errors.Is(err, base) || !strings.Contains(err.Error(), "config write /etc/modwarden/settings.json") {
		t.Fatalf("unexpected wrapped error: %v", err)
	}
	if !strings.Contains(buf.String(), "operation=write") {
		t.Fatalf("missing log line: %q", buf.String())
	}
}
