// Package instance names the running process for logs and lease owners.
package instance

import (
	"os"
	"strings"
)

// ID returns QUOTEDESK_INSTANCE_ID, then the platform's DYNO, then the
// hostname, then "local".
func ID() string {
	for _, env := range []string{"QUOTEDESK_INSTANCE_ID", "DYNO"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
