package provider

import (
	"strconv"
	"strings"
)

// ParseNumber parses the loosely-formatted numeric strings several
// upstream providers emit: thousand separators, a trailing 万 (1e4) or
// 亿 (1e8) unit suffix, and the various blank-ish spellings some feeds
// use in place of an actual value. Returns ok=false for any of those
// blank spellings, matching the original provider layer treating them
// as "no data" rather than zero.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "-", "--", "nan", "null", "n/a":
		return 0, false
	}

	s = strings.ReplaceAll(s, ",", "")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "亿"):
		multiplier = 1e8
		s = strings.TrimSuffix(s, "亿")
	case strings.HasSuffix(s, "万"):
		multiplier = 1e4
		s = strings.TrimSuffix(s, "万")
	}

	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v * multiplier, true
}
