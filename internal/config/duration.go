package config

import (
	"fmt"
	"time"
)

// ParseDurationField parses a Go duration string from config, returning a
// descriptive error naming the field when the value is malformed.
func ParseDurationField(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("%s: empty duration", field)
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", field, value)
	}
	return d, nil
}

// ParseDurationOrDefault parses value and falls back to def when the value
// is empty or invalid.
func ParseDurationOrDefault(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def
	}
	return d
}
