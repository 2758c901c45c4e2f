package testhelpers

import (
	"strconv"
	"time"
)

// ========================================
// Zabbix row builders
// ========================================

// ProblemBuilder builds problem.get rows
type ProblemBuilder struct {
	row map[string]interface{}
}

// NewProblemBuilder creates a problem row with defaults
func NewProblemBuilder(eventID, triggerID string) *ProblemBuilder {
	return &ProblemBuilder{row: map[string]interface{}{
		"eventid":      eventID,
		"objectid":     triggerID,
		"name":         "Problem " + eventID,
		"clock":        strconv.FormatInt(time.Now().Unix(), 10),
		"severity":     "3",
		"acknowledged": "0",
		"r_eventid":    "0",
	}}
}

// WithName sets the problem name
func (b *ProblemBuilder) WithName(name string) *ProblemBuilder {
	b.row["name"] = name
	return b
}

// WithClock sets the creation time
func (b *ProblemBuilder) WithClock(t time.Time) *ProblemBuilder {
	b.row["clock"] = strconv.FormatInt(t.Unix(), 10)
	return b
}

// WithSeverity sets the severity
func (b *ProblemBuilder) WithSeverity(sev int) *ProblemBuilder {
	b.row["severity"] = strconv.Itoa(sev)
	return b
}

// Acknowledged marks the problem acknowledged
func (b *ProblemBuilder) Acknowledged() *ProblemBuilder {
	b.row["acknowledged"] = "1"
	return b
}

// Build returns the row
func (b *ProblemBuilder) Build() map[string]interface{} {
	return b.row
}

// TriggerRow builds a trigger.get row with one host
func TriggerRow(triggerID, hostID, hostName string, disabled bool) map[string]interface{} {
	status := "0"
	if disabled {
		status = "1"
	}
	return map[string]interface{}{
		"triggerid": triggerID,
		"hosts": []map[string]interface{}{
			{"hostid": hostID, "host": hostName, "name": hostName, "status": status},
		},
	}
}

// HostRow builds a host.get row using the selectHostGroups field
func HostRow(hostID, hostName string, groupIDs ...string) map[string]interface{} {
	groups := make([]map[string]interface{}, 0, len(groupIDs))
	for _, id := range groupIDs {
		groups = append(groups, map[string]interface{}{"groupid": id, "name": "Group " + id})
	}
	return map[string]interface{}{
		"hostid":     hostID,
		"host":       hostName,
		"name":       hostName,
		"status":     "0",
		"hostgroups": groups,
	}
}
