//go:build !windows && !darwin

package util

import "path/filepath"

// XDG base directories, falling back to the XDG defaults under $HOME.

func platformConfigDir(appName string) string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), sanitizeAppNameForPath(appName))
}

func platformDataDir(appName string) string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), sanitizeAppNameForPath(appName))
}

func platformLogDir(appName string) string {
	return filepath.Join(xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state")), sanitizeAppNameForPath(appName), "logs")
}

func xdgDir(env, homeRel string) string {
	if d := envDir(env); d != "" {
		return d
	}
	return filepath.Join(homeDir(), homeRel)
}
