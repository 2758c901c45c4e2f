package models

import "strconv"

// Severity is a Zabbix trigger severity (0 = not classified, 5 = disaster)
type Severity int

const (
	SeverityNotClassified Severity = 0
	SeverityInformation   Severity = 1
	SeverityWarning       Severity = 2
	SeverityAverage       Severity = 3
	SeverityHigh          Severity = 4
	SeverityDisaster      Severity = 5
)

// AllSeverities lists severities from most to least urgent, the order
// used for kanban columns.
var AllSeverities = []Severity{
	SeverityDisaster,
	SeverityHigh,
	SeverityAverage,
	SeverityWarning,
	SeverityInformation,
	SeverityNotClassified,
}

// ParseSeverity converts the string form returned by the Zabbix API
func ParseSeverity(s string) (Severity, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return SeverityNotClassified, false
	}
	sev := Severity(n)
	return sev, sev.Valid()
}

// Valid reports whether the severity is within the 0..5 range
func (s Severity) Valid() bool {
	return s >= SeverityNotClassified && s <= SeverityDisaster
}

// Label returns a human-readable severity label
func (s Severity) Label() string {
	switch s {
	case SeverityDisaster:
		return "Disaster"
	case SeverityHigh:
		return "High"
	case SeverityAverage:
		return "Average"
	case SeverityWarning:
		return "Warning"
	case SeverityInformation:
		return "Information"
	case SeverityNotClassified:
		return "Not classified"
	default:
		return "Unknown"
	}
}

// Style returns the CSS class used to color the severity
func (s Severity) Style() string {
	switch s {
	case SeverityDisaster:
		return "sev-disaster"
	case SeverityHigh:
		return "sev-high"
	case SeverityAverage:
		return "sev-average"
	case SeverityWarning:
		return "sev-warning"
	case SeverityInformation:
		return "sev-info"
	default:
		return "sev-na"
	}
}

// Emoji returns an emoji for the severity, used in chat digests
func (s Severity) Emoji() string {
	switch s {
	case SeverityDisaster:
		return "🔴"
	case SeverityHigh:
		return "🟠"
	case SeverityAverage:
		return "🟡"
	case SeverityWarning:
		return "🔵"
	case SeverityInformation:
		return "⚪"
	default:
		return "⚫"
	}
}
