package pulse

import (
	"strings"
	"time"
)

// Layouts the aggregate's creation timestamp has been observed in once
// the space separator is converted and the fraction truncated.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999-07",
	"2006-01-02T15:04:05.999-07:00",
	"2006-01-02T15:04:05.999Z07:00",
	"2006-01-02T15:04:05-07",
	time.RFC3339,
}

// normalizeTimestamp parses the backend's space-separated, microsecond
// precision timestamp (e.g. "2025-08-04 07:29:31.201333+00"). The
// separator becomes "T" and the fraction is truncated to milliseconds
// before parsing. An unparseable value yields now instead of an invalid
// date.
func normalizeTimestamp(raw string, now time.Time) time.Time {
	candidate := strings.Replace(strings.TrimSpace(raw), " ", "T", 1)
	candidate = truncateFraction(candidate)

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, candidate); err == nil {
			return parsed
		}
	}
	return now.UTC()
}

// truncateFraction keeps at most three fractional-second digits,
// preserving whatever zone suffix follows them.
func truncateFraction(value string) string {
	dot := strings.IndexByte(value, '.')
	if dot < 0 {
		return value
	}

	end := dot + 1
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}

	fraction := value[dot+1 : end]
	if len(fraction) > 3 {
		fraction = fraction[:3]
	}
	if fraction == "" {
		return value[:dot] + value[end:]
	}
	return value[:dot] + "." + fraction + value[end:]
}
