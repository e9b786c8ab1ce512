package util

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultAppDirName = "modwarden"

var unsafePathChars = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	"<", "-",
	">", "-",
	":", "-",
	"\"", "-",
	"|", "-",
	"?", "-",
	"*", "-",
	"\x00", "",
)

// sanitizeAppNameForPath turns an app or bot name into one directory segment
// that is valid on every supported OS.
func sanitizeAppNameForPath(name string) string {
	n := unsafePathChars.Replace(strings.TrimSpace(name))
	n = strings.TrimRight(n, " .")
	if n == "" || n == "." {
		return defaultAppDirName
	}
	return n
}

// envDir returns $name when it holds an absolute path.
func envDir(name string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" || !filepath.IsAbs(v) {
		return ""
	}
	return v
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil && strings.TrimSpace(h) != "" {
		return h
	}
	if h := strings.TrimSpace(os.Getenv("HOME")); h != "" {
		return h
	}
	return "."
}
