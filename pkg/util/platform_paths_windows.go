//go:build windows

package util

import "path/filepath"

// Settings roam with the profile; the ledger and logs stay machine-local.

func platformConfigDir(appName string) string {
	base := envDir("APPDATA")
	if base == "" {
		base = filepath.Join(homeDir(), "AppData", "Roaming")
	}
	return filepath.Join(base, sanitizeAppNameForPath(appName))
}

func platformDataDir(appName string) string {
	return filepath.Join(localAppData(), sanitizeAppNameForPath(appName), "Data")
}

func platformLogDir(appName string) string {
	return filepath.Join(localAppData(), sanitizeAppNameForPath(appName), "Logs")
}

func localAppData() string {
	if d := envDir("LOCALAPPDATA"); d != "" {
		return d
	}
	return filepath.Join(homeDir(), "AppData", "Local")
}
