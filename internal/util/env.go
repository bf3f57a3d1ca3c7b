// Package util provides small helpers shared across FormBot components:
// environment parsing and the provisional-id scheme for editor drafts.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv reads a boolean environment variable, accepting true/1/yes/on
// and false/0/no/off in any case. Unset variables take the default silently;
// unrecognized values take it with a warning.
func ParseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("ParseBoolEnv ignoring unrecognized value", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
}
