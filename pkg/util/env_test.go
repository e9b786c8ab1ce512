package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeHomeEnv(t *testing.T, body string) string {
	t.Helper()
	home := t.TempDir()
	dir := filepath.Join(home, ".local", "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(body), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("HOME", home)
	return home
}

func TestTokenFallbackFile(t *testing.T) {
	writeHomeEnv(t, "MODWARDEN_TEST_TOKEN=from-file\nMODWARDEN_TEST_EXTRA=also-loaded\n")
	t.Setenv("MODWARDEN_TEST_TOKEN", "")
	os.Unsetenv("MODWARDEN_TEST_TOKEN")
	t.Cleanup(func() { os.Unsetenv("MODWARDEN_TEST_EXTRA") })

	got, err := LoadEnvWithLocalBinFallback("MODWARDEN_TEST_TOKEN")
	if err != nil || got != "from-file" {
		t.Fatalf("expected token from file, got %q err=%v", got, err)
	}
	if v := os.Getenv("MODWARDEN_TEST_EXTRA"); v != "also-loaded" {
		t.Fatalf("other variables in the file should load too, got %q", v)
	}

	t.Setenv("MODWARDEN_TEST_TOKEN", "from-env")
	if got, _ := LoadEnvWithLocalBinFallback("MODWARDEN_TEST_TOKEN"); got != "from-env" {
		t.Fatalf("process env must win over the file, got %q", got)
	}
}

func TestTokenMissingNamesFallbackFile(t *testing.T) {
	home := writeHomeEnv(t, "UNRELATED=1\n")
	t.Setenv("MODWARDEN_TEST_MISSING", "")
	os.Unsetenv("MODWARDEN_TEST_MISSING")
	t.Cleanup(func() { os.Unsetenv("UNRELATED") })

	_, err := LoadEnvWithLocalBinFallback("MODWARDEN_TEST_MISSING")
	if err == nil || !strings.Contains(err.Error(), filepath.Join(home, ".local", "bin", ".env")) {
		t.Fatalf("expected error naming the fallback file, got %v", err)
	}
}

func TestEnvParsers(t *testing.T) {
	t.Setenv("MW_BOOL", " On ")
	t.Setenv("MW_BOOL_NO", "disabled")
	t.Setenv("MW_STR", "  ")
	t.Setenv("MW_RATE", "4")
	t.Setenv("MW_RATE_BAD", "4/s")
	t.Setenv("MW_WAIT", "1500ms")
	t.Setenv("MW_WAIT_BAD", "soon")
	t.Setenv("MW_WAIT_NEG", "-5s")

	if !EnvBool("MW_BOOL") || EnvBool("MW_BOOL_NO") || EnvBool("MW_UNSET") {
		t.Fatalf("unexpected EnvBool results")
	}
	if got := EnvString("MW_STR", "fallback"); got != "fallback" {
		t.Fatalf("blank strings fall back, got %q", got)
	}
	if got := EnvInt64("MW_RATE", 1); got != 4 {
		t.Fatalf("EnvInt64 = %d, want 4", got)
	}
	if got := EnvInt64("MW_RATE_BAD", 1); got != 1 {
		t.Fatalf("malformed ints fall back, got %d", got)
	}

	durations := map[string]time.Duration{
		"MW_WAIT":     1500 * time.Millisecond,
		"MW_WAIT_BAD": time.Second,
		"MW_WAIT_NEG": time.Second,
		"MW_UNSET":    time.Second,
	}
	for name, want := range durations {
		if got := EnvDuration(name, time.Second); got != want {
			t.Errorf("EnvDuration(%s) = %v, want %v", name, got, want)
		}
	}
}
