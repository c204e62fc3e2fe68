package instance

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// EnvInstanceID overrides the derived worker identity.
const EnvInstanceID = "STOCKSYNC_INSTANCE_ID"

// GetID returns the worker instance identifier. It prefers the configured id,
// then hostname-pid, and finally a random id so replicas never share one.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(EnvInstanceID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return "worker-" + uuid.NewString()[:8]
}
