package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Control characters (except common whitespace)
var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

// SanitizeMessage cleans free text typed by a user before it is sent to
// Zabbix: control characters are removed, surrounding whitespace trimmed
// and the result capped at maxRunes. Line breaks are kept.
func SanitizeMessage(text string, maxRunes int) string {
	text = controlCharPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)

	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return text
}

// EscapeForLogging escapes user supplied content for safe single-line logging
func EscapeForLogging(text string, maxLen int) string {
	// Truncate on a rune boundary
	if len(text) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}

	// Remove newlines for single-line logging
	text = strings.ReplaceAll(text, "\n", "\\n")
	text = strings.ReplaceAll(text, "\r", "\\r")
	text = strings.ReplaceAll(text, "\t", "\\t")

	return controlCharPattern.ReplaceAllString(text, "")
}
