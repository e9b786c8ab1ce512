//go:build !windows && !darwin

package util

import (
	"path/filepath"
	"testing"
)

func TestPlatformPathsFollowXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/srv/cfg")
	t.Setenv("XDG_DATA_HOME", "/srv/data")
	t.Setenv("XDG_STATE_HOME", "/srv/state")

	if got := platformConfigDir("warden"); got != "/srv/cfg/warden" {
		t.Fatalf("config dir = %q", got)
	}
	if got := platformDataDir("warden"); got != "/srv/data/warden" {
		t.Fatalf("data dir = %q", got)
	}
	if got := platformLogDir("warden"); got != "/srv/state/warden/logs" {
		t.Fatalf("log dir = %q", got)
	}
}

func TestPlatformPathsIgnoreRelativeXDG(t *testing.T) {
	t.Setenv("HOME", "/home/mod")
	t.Setenv("XDG_DATA_HOME", "relative/data")

	if got, want := platformDataDir("warden"), filepath.Join(homeDir(), ".local", "share", "warden"); got != want {
		t.Fatalf("data dir = %q, want %q", got, want)
	}
}
