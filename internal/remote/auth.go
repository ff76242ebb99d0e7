package remote

import (
	"fmt"
	"os"

	"github.com/randalmurphal/tasksync/internal/config"
)

// ResolveToken returns the API token: the explicit value when given,
// otherwise the environment variable named by the config.
func ResolveToken(cfg config.RemoteConfig, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	name := cfg.GetTokenEnvVar()
	if token := os.Getenv(name); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("%s environment variable is not set (required for remote API access)", name)
}
