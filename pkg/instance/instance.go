package instance

import (
	"os"
	"strings"

	"github.com/inkroute/inkroute-backend/pkg/env"
)

// GetID identifies the running process in logs and lock ownership.
// INKROUTE_INSTANCE_ID wins, then the Heroku DYNO name, then the hostname.
func GetID(service string) string {
	if id := strings.TrimSpace(env.Get("INKROUTE_INSTANCE_ID", env.Get("DYNO", ""))); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	if service == "" {
		return host
	}
	return service + "@" + host
}
