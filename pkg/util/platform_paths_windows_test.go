//go:build windows

package util

import (
	"path/filepath"
	"testing"
)

func TestPlatformPathsWindows(t *testing.T) {
	t.Setenv("APPDATA", `C:\Users\mod\AppData\Roaming`)
	t.Setenv("LOCALAPPDATA", `C:\Users\mod\AppData\Local`)

	if got, want := platformConfigDir("Mod:Warden "), filepath.Join(`C:\Users\mod\AppData\Roaming`, "Mod-Warden"); got != want {
		t.Fatalf("config dir = %q, want %q", got, want)
	}
	if got, want := platformDataDir("Mod:Warden "), filepath.Join(`C:\Users\mod\AppData\Local`, "Mod-Warden", "Data"); got != want {
		t.Fatalf("data dir = %q, want %q", got, want)
	}
	if got, want := platformLogDir("Mod:Warden "), filepath.Join(`C:\Users\mod\AppData\Local`, "Mod-Warden", "Logs"); got != want {
		t.Fatalf("log dir = %q, want %q", got, want)
	}
}
