package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	l := NewLoggerForDir(dir, &stdout, &stderr)

	l.Get(Application).Info("hello", "guildID", "g1")
	l.Get(Errors).Error("boom")
	if err := l.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "application.log"))
	if err != nil {
		t.Fatalf("read application.log: %v", err)
	}
	if !strings.Contains(string(data), "guildID=g1") || !strings.Contains(string(data), "category=application") {
		t.Fatalf("unexpected application log: %q", data)
	}
	if !strings.Contains(stdout.String(), "hello") {
		t.Fatalf("expected console copy on stdout, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Fatalf("expected error on stderr, got %q", stderr.String())
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	l := NewLoggerForDir(dir, &stdout, nil)
	l.SetLevel(slog.LevelWarn)

	l.Get(DiscordEvents).Info("quiet")
	l.Get(DiscordEvents).Warn("loud")
	_ = l.Sync()

	if strings.Contains(stdout.String(), "quiet") {
		t.Fatalf("info record should be filtered at warn level")
	}
	if !strings.Contains(stdout.String(), "loud") {
		t.Fatalf("warn record missing: %q", stdout.String())
	}
}

func TestNilLoggerFallsBack(t *testing.T) {
	var l *Logger
	if l.Get(Application) == nil {
		t.Fatalf("nil logger must fall back to slog.Default")
	}
	if err := l.Sync(); err != nil {
		t.Fatalf("nil sync: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q)=%v want %v", in, got, want)
		}
	}
}
