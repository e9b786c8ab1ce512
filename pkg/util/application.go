package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// AppVersion is the version string reported by the binary.
var AppVersion = "dev"

var names struct {
	sync.RWMutex
	configured string
	discord    string
}

// SetAppName sets the configured application name. It takes precedence over the bot name in paths.
func SetAppName(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	names.Lock()
	names.configured = sanitizeAppNameForPath(name)
	names.Unlock()
}

// SetBotName records the authenticated bot's username.
func SetBotName(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	names.Lock()
	names.discord = sanitizeAppNameForPath(name)
	names.Unlock()
}

// EffectiveBotName prefers the configured app name, then the Discord username.
func EffectiveBotName() string {
	names.RLock()
	defer names.RUnlock()
	if names.configured != "" {
		return names.configured
	}
	if names.discord != "" {
		return names.discord
	}
	return defaultAppDirName
}

// GetSettingsFilePath returns the settings JSON path, honouring MODWARDEN_SETTINGS_PATH.
func GetSettingsFilePath() string {
	if p := EnvString("MODWARDEN_SETTINGS_PATH", ""); p != "" {
		return p
	}
	return filepath.Join(platformConfigDir(EffectiveBotName()), "settings.json")
}

// GetCaseDBPath returns the SQLite path for the moderation case ledger, honouring MODWARDEN_DB_PATH.
func GetCaseDBPath() string {
	if p := EnvString("MODWARDEN_DB_PATH", ""); p != "" {
		return p
	}
	return filepath.Join(platformDataDir(EffectiveBotName()), "cases.db")
}

// GetLogFilePath returns the main log file path.
func GetLogFilePath() string {
	return filepath.Join(platformLogDir(EffectiveBotName()), "modwarden.log")
}

// EnsureDataDirs creates the directories holding settings and the case ledger.
func EnsureDataDirs() error {
	for _, d := range []string{filepath.Dir(GetSettingsFilePath()), filepath.Dir(GetCaseDBPath())} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create data directory %s: %w", d, err)
		}
	}
	return nil
}
