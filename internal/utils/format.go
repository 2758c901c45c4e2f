package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timeUnits maps Zabbix time suffixes to their length
var timeUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseTimeUnit parses a Zabbix-style time unit string.
// Examples: "90" -> 90s, "30s", "5m", "2h", "1d", "1w"
func ParseTimeUnit(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time unit")
	}

	unit := time.Second
	if mult, ok := timeUnits[s[len(s)-1]]; ok {
		unit = mult
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time unit %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative time unit %q", s)
	}

	return time.Duration(n) * unit, nil
}

// FormatAge formats an elapsed duration the way the Zabbix frontend shows
// problem age: at most three non-zero units, largest first.
// Examples: "45s", "5m 3s", "2h 15m", "3d 4h 10m"
func FormatAge(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}

	parts := []struct {
		unit   time.Duration
		suffix string
	}{
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}

	var out []string
	for _, p := range parts {
		if len(out) == 3 {
			break
		}
		n := d / p.unit
		d -= n * p.unit
		if n > 0 {
			out = append(out, fmt.Sprintf("%d%s", n, p.suffix))
		}
	}

	return strings.Join(out, " ")
}

// FormatNumber formats a number with comma separators
// Examples: 123 -> "123", 1234 -> "1,234", 1234567 -> "1,234,567"
func FormatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	var result []rune
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, c)
	}
	return string(result)
}

// TruncateText truncates text to maxLen characters, adding "..." if truncated
// Also removes newlines for single-line display
func TruncateText(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.TrimSpace(text)

	if len(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	return text[:maxLen-3] + "..."
}
