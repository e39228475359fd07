package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnv overlays HUB_* environment variables onto cfg. Only non-empty
// variables override; malformed numbers and durations are ignored.
//
//	HUB_FILES_DIR, HUB_TEXT_DIR, HUB_NOTES_DIR  well-known directories
//	HUB_BRIDGE_TEMPLATE                          bridge device pattern
//	HUB_BRIDGE_LINE_MODE                         1, true or yes
//	HUB_DIAL_TIMEOUT                             "15s" or seconds
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("HUB_FILES_DIR"); v != "" {
		cfg.Dirs.Files = v
	}
	if v := os.Getenv("HUB_TEXT_DIR"); v != "" {
		cfg.Dirs.Text = v
	}
	if v := os.Getenv("HUB_NOTES_DIR"); v != "" {
		cfg.Dirs.Notes = v
	}
	if v := os.Getenv("HUB_BRIDGE_TEMPLATE"); v != "" {
		cfg.Bridge.PortTemplate = v
	}
	if v, ok := envBool("HUB_BRIDGE_LINE_MODE"); ok {
		cfg.Bridge.LineMode = v
	}
	if v, ok := envDuration("HUB_DIAL_TIMEOUT"); ok {
		cfg.Timing.DialTimeout = Duration(v)
	}
}

func envBool(key string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return false, false
	}

	return v == "1" || v == "true" || v == "yes", true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}

	d, err := parseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}

	return d, true
}

// parseDuration accepts a Go duration string or a plain number of seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	return time.ParseDuration(s)
}
