package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Prefix string   `json:"prefix"`
	Roles  []string `json:"roles"`
}

func TestJSONManagerRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewJSONManager(path)

	if err := m.Save(sample{Prefix: "!", Roles: []string{"Server Mod"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	var got sample
	if err := m.Load(&got); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Prefix != "!" || len(got.Roles) != 1 || got.Roles[0] != "Server Mod" {
		t.Fatalf("unexpected document %+v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files must not be left behind, found %d entries", len(entries))
	}
}

func TestJSONManagerMissingAndCorrupt(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := sample{Prefix: "keep"}
	if err := NewJSONManager(filepath.Join(dir, "absent.json")).Load(&got); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if got.Prefix != "keep" {
		t.Fatalf("missing file must leave data untouched, got %+v", got)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"prefix":`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := NewJSONManager(bad).Load(&got)
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
