package util

import "testing"

func TestSanitizeAppNameForPath(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":              defaultAppDirName,
		"   ":           defaultAppDirName,
		"..":            defaultAppDirName,
		"warden":        "warden",
		"mod/warden":    "mod-warden",
		`mod\warden`:    "mod-warden",
		"Mod:Warden?":   "Mod-Warden-",
		"trailing. . ":  "trailing",
		"nul\x00byte":   "nulbyte",
		"  spaced out ": "spaced out",
	}
	for in, want := range cases {
		if got := sanitizeAppNameForPath(in); got != want {
			t.Errorf("sanitizeAppNameForPath(%q) = %q, want %q", in, got, want)
		}
	}
}
