package zabbix

import (
	"bytes"
	"strconv"
	"time"
)

// Host status values
const (
	HostStatusMonitored   = "0"
	HostStatusUnmonitored = "1"
)

// User types, as returned by user.checkAuthentication
const (
	UserTypeZabbixUser  = 1
	UserTypeZabbixAdmin = 2
	UserTypeSuperAdmin  = 3
)

// Problem is a row of problem.get. Zabbix encodes numbers as strings.
type Problem struct {
	EventID      string `json:"eventid"`
	ObjectID     string `json:"objectid"`
	Name         string `json:"name"`
	Clock        string `json:"clock"`
	Severity     string `json:"severity"`
	Acknowledged string `json:"acknowledged"`
	REventID     string `json:"r_eventid"`
}

// Time returns the problem creation time
func (p Problem) Time() time.Time {
	sec, _ := strconv.ParseInt(p.Clock, 10, 64)
	return time.Unix(sec, 0)
}

// IsAcknowledged reports whether the problem has been acknowledged
func (p Problem) IsAcknowledged() bool {
	return p.Acknowledged == "1"
}

// IsResolved reports whether a recovery event exists for the problem
func (p Problem) IsResolved() bool {
	return p.REventID != "" && p.REventID != "0"
}

// HostGroup is a row of hostgroup.get
type HostGroup struct {
	GroupID string `json:"groupid"`
	Name    string `json:"name,omitempty"`
}

// Host is a row of host.get or a selectHosts entry
type Host struct {
	HostID string `json:"hostid"`
	Host   string `json:"host,omitempty"`
	Name   string `json:"name"`
	Status string `json:"status"`

	// HostGroups is filled by selectHostGroups (Zabbix 6.2+), Groups by the
	// legacy selectGroups.
	HostGroups []HostGroup `json:"hostgroups,omitempty"`
	Groups     []HostGroup `json:"groups,omitempty"`
}

// GroupIDs returns the ids of the groups the host belongs to
func (h Host) GroupIDs() []string {
	groups := h.HostGroups
	if len(groups) == 0 {
		groups = h.Groups
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.GroupID)
	}
	return ids
}

// IsDisabled reports whether the host is administratively disabled
func (h Host) IsDisabled() bool {
	return h.Status == HostStatusUnmonitored
}

// DisplayName prefers the visible name over the technical host name
func (h Host) DisplayName() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Host
}

// Trigger is a row of trigger.get with selectHosts
type Trigger struct {
	TriggerID string `json:"triggerid"`
	Hosts     []Host `json:"hosts"`
}

// PrimaryHost returns the first host of the trigger
func (t Trigger) PrimaryHost() (Host, bool) {
	if len(t.Hosts) == 0 {
		return Host{}, false
	}
	return t.Hosts[0], true
}

// ProblemQuery holds the optional problem.get predicates
type ProblemQuery struct {
	GroupIDs     []string
	HostIDs      []string
	Acknowledged *bool
	// TimeTill limits results to problems created before this time
	TimeTill   time.Time
	Severities []int
	Recent     bool
	Limit      int
}

// UserInfo describes an authenticated Zabbix user
type UserInfo struct {
	UserID   string `json:"userid"`
	Username string `json:"username"`
	Type     FlexInt `json:"type"`
}

// FlexInt decodes an integer sent either as a JSON number or a string
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}
