package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/modoterra/linux2rest/pkg/providers/system"
)

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}

	switch c.Kernel.Backend {
	case "kmsg", "klog", "journal":
	case "":
		errs = append(errs, fmt.Errorf("kernel.backend is required"))
	default:
		errs = append(errs, fmt.Errorf("kernel.backend must be kmsg, klog or journal; got %q", c.Kernel.Backend))
	}
	if c.Kernel.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("kernel.queue_size must be positive, got %d", c.Kernel.QueueSize))
	}
	if c.Kernel.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("kernel.poll_interval must be positive, got %s", c.Kernel.PollInterval))
	}

	keys := make([]string, 0, len(c.LogSettings))
	for k := range c.LogSettings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := validateInterval(k, c.LogSettings[k]); err != nil {
			errs = append(errs, fmt.Errorf("log_settings: %w", err))
		}
	}

	return errs
}

// ParseLogSettings parses "key=seconds,key=seconds" into recorder
// intervals. An empty string yields an empty map.
func ParseLogSettings(s string) (map[string]int, error) {
	settings := make(map[string]int)
	s = strings.TrimSpace(s)
	if s == "" {
		return settings, nil
	}

	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid setting %q, expected key=value", pair)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q, expected an integer", key)
		}
		if err := validateInterval(key, n); err != nil {
			return nil, err
		}
		settings[key] = n
	}
	return settings, nil
}

func validateInterval(key string, seconds int) error {
	c, ok := system.Lookup(key)
	if !ok {
		return fmt.Errorf("unknown category %q (valid: %s)", key, strings.Join(system.Names(), ", "))
	}
	if seconds < c.MinInterval {
		return fmt.Errorf("interval for %q must not be less than %d seconds", key, c.MinInterval)
	}
	return nil
}
