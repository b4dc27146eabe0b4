// Package boot provides runtime configuration and dependency wiring shared
// by the service and the operator CLI.
package boot

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/memohai/smsrouter/internal/config"
)

// RuntimeConfig holds settings that environment variables may override
// (HTTP_ADDR, SMSROUTER_DEBUG).
type RuntimeConfig struct {
	ServerAddr string
	Debug      bool
	// WebhookTransport receives callbacks on /incoming without a name.
	WebhookTransport string
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		ServerAddr:       cfg.Server.Addr,
		Debug:            cfg.Debug,
		WebhookTransport: config.DefaultHTTPTransport,
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}

	if value := strings.TrimSpace(os.Getenv("SMSROUTER_DEBUG")); value != "" {
		debug, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid SMSROUTER_DEBUG: %w", err)
		}
		ret.Debug = debug
	}

	if _, ok := cfg.Transports[ret.WebhookTransport]; !ok {
		for _, name := range sortedNames(cfg.Transports) {
			if cfg.Transports[name].Kind == config.KindHTTP {
				ret.WebhookTransport = name
				break
			}
		}
	}
	return ret, nil
}
