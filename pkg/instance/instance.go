// Package instance names the running process for lock ownership and logs.
package instance

import (
	"os"

	"github.com/angelmondragon/keyshop-backend/pkg/env"
)

const fallbackID = "keyshop-0"

// ID returns KEYSHOP_INSTANCE_ID, then the pod hostname, then a fixed default.
func ID() string {
	if id := env.FirstOf("KEYSHOP_INSTANCE_ID", "HOSTNAME"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
