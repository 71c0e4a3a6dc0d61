package main

import (
	"time"

	"github.com/avdecc-go/avdecc/internal/config"
)

// resolveTimeout applies config-file/flag precedence: an explicit flag
// value wins, then the config file's discoveryTimeout, then fallback.
// The go-flags default ("5s") is indistinguishable from an explicit
// "-t 5s" at this layer, so a config file is only overridden by a flag
// value that actually differs from that default.
func resolveTimeout(flagValue string, cfg config.Config, fallback time.Duration) (time.Duration, error) {
	if flagValue != "" && flagValue != "5s" {
		return time.ParseDuration(flagValue)
	}
	if cfg.DiscoveryTimeout != 0 {
		return cfg.DiscoveryTimeout, nil
	}
	if flagValue != "" {
		return time.ParseDuration(flagValue)
	}
	return fallback, nil
}

func resolveIface(flagValue string, cfg config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.Interface
}
