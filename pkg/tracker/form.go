package tracker

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxErrorMessageLength caps the error text sent with a result.
const MaxErrorMessageLength = 1000

// ParsePriorities splits a comma-separated priority list. Entries are
// trimmed, blanks dropped and duplicates removed keeping the first
// occurrence.
func ParsePriorities(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if _, ok := seen[p]; ok {
			continue
		}

		seen[p] = struct{}{}
		out = append(out, p)
	}

	return out
}

// Truncate returns s cut to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)

	return string(runes[:n])
}

// FormatSeconds renders an execution time the way the tracker's result
// columns have always received it: shortest form, with at least one
// decimal place ("0.0", "1.5", "0.012").
func FormatSeconds(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}

	return s
}
