package app

import (
	"fmt"
	"strings"

	"github.com/small-frappuccino/modwarden/pkg/util"
)

// AppVersion is the version reported at startup.
func AppVersion() string {
	return util.AppVersion
}

// SetAppVersion overrides the reported version. Blank values are ignored.
func SetAppVersion(v string) {
	if v = strings.TrimSpace(v); v != "" {
		util.AppVersion = v
	}
}

func formatStartupMessage(appName, version string) string {
	version = strings.TrimSpace(version)
	if version == "" || version == "dev" {
		return fmt.Sprintf("🚀 Starting %s...", appName)
	}
	return fmt.Sprintf("🚀 Starting %s %s...", appName, version)
}
