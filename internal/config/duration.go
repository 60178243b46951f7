package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDuration reads a duration option such as "250ms" or "1h". A blank or
// zero value yields def. Negative values are rejected; field names the option
// in the error.
func ParseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
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
