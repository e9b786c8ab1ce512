//go:build darwin

package util

import "path/filepath"

func platformConfigDir(appName string) string {
	return filepath.Join(homeDir(), "Library", "Application Support", sanitizeAppNameForPath(appName))
}

// Settings and the case ledger share Application Support on macOS.
func platformDataDir(appName string) string {
	return filepath.Join(platformConfigDir(appName), "Data")
}

func platformLogDir(appName string) string {
	return filepath.Join(homeDir(), "Library", "Logs", sanitizeAppNameForPath(appName))
}
