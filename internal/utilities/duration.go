package utilities

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ParseDuration accepts Go duration strings ("90s", "1h30m") and bare
// integers, which are read as seconds.
func ParseDuration(s string) (time.Duration, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return 0, errors.New("empty duration")
	}
	if secs, err := strconv.ParseInt(in, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(in)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDuration that returns def for blank input.
func ParseDurationOrDefault(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	return ParseDuration(s)
}
