package http

import (
	"time"

	xutil "StormFlow/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }

// ParseDurationDefault parses a duration or returns default if empty/invalid.
func ParseDurationDefault(s string, def time.Duration) time.Duration {
	return xutil.ParseDuration(s, def)
}
