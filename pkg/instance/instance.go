// Package instance names the running process in logs and lock ownership.
package instance

import (
	"os"

	"github.com/angelmondragon/storefront-orders/pkg/env"
)

// ID returns the configured instance identifier. Without one it falls back
// to kind plus the hostname.
func ID(kind string) string {
	if id := env.FirstOf("", "STOREFRONT_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return kind + "-" + host
	}
	return kind + "-0"
}
