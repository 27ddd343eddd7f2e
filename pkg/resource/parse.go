// Package resource provides resource normalization, validation, default
// profiles, and command-based inference used when converting between
// shared-filesystem and distributed workflow formats.
package resource

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var memoryPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([KMGT]I?B?)?$`)

// ParseMemoryMB normalizes a memory string to MB. Accepted suffixes are
// KB/MB/GB/TB (and bare K/M/G/T); a bare number is taken as MB. Sub-MB
// quantities truncate toward zero. Units above TB are rejected.
func ParseMemoryMB(value string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return 0, fmt.Errorf("empty memory value")
	}
	m := memoryPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, fmt.Errorf("could not parse memory value %q", value)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse memory value %q: %w", value, err)
	}
	switch strings.TrimSuffix(strings.TrimSuffix(m[2], "B"), "I") {
	case "K":
		return int64(n / 1024), nil
	case "M", "":
		return int64(n), nil
	case "G":
		return int64(n * 1024), nil
	case "T":
		return int64(n * 1024 * 1024), nil
	}
	return 0, fmt.Errorf("could not parse memory value %q", value)
}

var timePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-z]*)$`)

// ParseTimeS normalizes a duration string to seconds. Accepted suffixes are
// s/sec/seconds, m/min/minutes, h/hours, d/days; a bare number is taken as
// seconds. Weeks and larger units are rejected.
func ParseTimeS(value string) (int64, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0, fmt.Errorf("empty time value")
	}
	m := timePattern.FindStringSubmatch(v)
	if m == nil {
		return 0, fmt.Errorf("could not parse time value %q", value)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse time value %q: %w", value, err)
	}
	switch m[2] {
	case "", "s", "sec", "secs", "second", "seconds":
		return int64(n), nil
	case "m", "min", "mins", "minute", "minutes":
		return int64(n * 60), nil
	case "h", "hr", "hrs", "hour", "hours":
		return int64(n * 3600), nil
	case "d", "day", "days":
		return int64(n * 86400), nil
	}
	return 0, fmt.Errorf("could not parse time value %q", value)
}

// FormatMemoryMB renders a MB count the way DAGMan submit files expect.
func FormatMemoryMB(mb int64) string { return fmt.Sprintf("%dMB", mb) }
