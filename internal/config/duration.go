package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationOrDefault parses a non-negative Go duration such as "90s".
// Blank and zero values yield def. field names the key in error messages.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}

// ParseDurationField is ParseDurationOrDefault with no fallback.
func ParseDurationField(field, raw string) (time.Duration, error) {
	return ParseDurationOrDefault(field, raw, 0)
}
