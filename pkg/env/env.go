// Package env reads process environment variables outside the typed config,
// for settings needed before config.Load runs or injected by the platform.
package env

import (
	"os"
	"strings"
)

// Prefix namespaces every service-owned variable.
const Prefix = "LESSONGATE_"

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Key returns name under the service prefix.
func Key(name string) string {
	return Prefix + strings.ToUpper(strings.TrimPrefix(name, Prefix))
}
