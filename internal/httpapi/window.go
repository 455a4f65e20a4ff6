package httpapi

import (
	"fmt"
	"strconv"
	"strings"
)

// maxWindowSeconds bounds accepted windows at seven days. Larger windows
// are almost certainly a typo and would ask the upstream for an unbounded
// amount of data.
const maxWindowSeconds = 7 * 24 * 3600

// ParseWindow converts a window expression into seconds. Accepted forms
// are bare digits (seconds) and digits with an s, m, or h suffix, matching
// the labels the incident ledger uses. Anything else is a caller error.
func ParseWindow(raw string) (int, error) {
	expr := strings.TrimSpace(strings.ToLower(raw))
	if expr == "" {
		return 0, fmt.Errorf("window must not be empty")
	}

	multiplier := 1
	switch expr[len(expr)-1] {
	case 's':
		expr = expr[:len(expr)-1]
	case 'm':
		multiplier = 60
		expr = expr[:len(expr)-1]
	case 'h':
		multiplier = 3600
		expr = expr[:len(expr)-1]
	}

	n, err := strconv.Atoi(expr)
	if err != nil {
		return 0, fmt.Errorf("malformed window %q", raw)
	}
	seconds := n * multiplier
	if seconds <= 0 {
		return 0, fmt.Errorf("window must be positive, got %q", raw)
	}
	if seconds > maxWindowSeconds {
		return 0, fmt.Errorf("window %q exceeds the 7d maximum", raw)
	}
	return seconds, nil
}
