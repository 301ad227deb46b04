package model

import (
	"strconv"
	"strings"
	"time"
)

const (
	day = 24 * time.Hour
	// maxInterval bounds "<N>d" / "<N>w" schedules.
	maxInterval = 100 * 365 * day
)

var namedFrequencies = map[string]time.Duration{
	"daily":     day,
	"weekly":    7 * day,
	"biweekly":  14 * day,
	"monthly":   30 * day,
	"quarterly": 91 * day,
}

// ParseFrequency maps a stored schedule string to an interval.
// Accepted forms are the named schedules and "<N>d" / "<N>w".
// The second result is false for manual (unmapped) schedules, which includes
// zero counts and intervals longer than a century.
func ParseFrequency(frequency string) (time.Duration, bool) {
	s := strings.ToLower(strings.TrimSpace(frequency))
	if s == "" {
		return 0, false
	}
	if d, ok := namedFrequencies[s]; ok {
		return d, true
	}

	var unit time.Duration
	switch {
	case strings.HasSuffix(s, "d"):
		unit = day
	case strings.HasSuffix(s, "w"):
		unit = 7 * day
	default:
		return 0, false
	}
	digits := s[:len(s)-1]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 || n > int(maxInterval/unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
