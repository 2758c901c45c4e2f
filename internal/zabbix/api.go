package zabbix

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// GetProblems runs problem.get with the given predicates
func (c *Client) GetProblems(ctx context.Context, q ProblemQuery) ([]Problem, error) {
	params := map[string]interface{}{
		"output":    []string{"eventid", "objectid", "name", "clock", "severity", "acknowledged", "r_eventid"},
		"sortfield": []string{"eventid"},
		"sortorder": "DESC",
	}
	if q.Recent {
		params["recent"] = true
	}
	if len(q.GroupIDs) > 0 {
		params["groupids"] = q.GroupIDs
	}
	if len(q.HostIDs) > 0 {
		params["hostids"] = q.HostIDs
	}
	if q.Acknowledged != nil {
		params["acknowledged"] = *q.Acknowledged
	}
	if !q.TimeTill.IsZero() {
		params["time_till"] = q.TimeTill.Unix()
	}
	if len(q.Severities) > 0 {
		sevs := append([]int(nil), q.Severities...)
		sort.Ints(sevs)
		params["severities"] = sevs
	}
	if q.Limit > 0 {
		params["limit"] = q.Limit
	}

	result, err := c.request(ctx, "problem.get", params)
	if err != nil {
		return nil, err
	}

	var problems []Problem
	if err := json.Unmarshal(result, &problems); err != nil {
		return nil, fmt.Errorf("failed to parse problems: %w", err)
	}
	return problems, nil
}

// GetTriggers returns the triggers with their hosts (id, name, status)
func (c *Client) GetTriggers(ctx context.Context, triggerIDs []string) ([]Trigger, error) {
	if len(triggerIDs) == 0 {
		return nil, nil
	}

	params := map[string]interface{}{
		"output":      []string{"triggerid"},
		"triggerids":  sortedCopy(triggerIDs),
		"selectHosts": []string{"hostid", "host", "name", "status"},
	}

	result, err := c.cachedRequest(ctx, "trigger.get", params)
	if err != nil {
		return nil, err
	}

	var triggers []Trigger
	if err := json.Unmarshal(result, &triggers); err != nil {
		return nil, fmt.Errorf("failed to parse triggers: %w", err)
	}
	return triggers, nil
}

// GetHosts returns the hosts with their group memberships. Zabbix 6.2
// replaced selectGroups with selectHostGroups; older servers reject the new
// parameter and are asked again with the legacy one.
func (c *Client) GetHosts(ctx context.Context, hostIDs []string) ([]Host, error) {
	if len(hostIDs) == 0 {
		return nil, nil
	}

	params := map[string]interface{}{
		"output":           []string{"hostid", "host", "name", "status"},
		"hostids":          sortedCopy(hostIDs),
		"selectHostGroups": []string{"groupid", "name"},
	}

	result, err := c.cachedRequest(ctx, "host.get", params)
	if IsInvalidParam(err, "selectHostGroups") {
		c.logger.Printf("Zabbix rejected selectHostGroups, falling back to selectGroups")
		delete(params, "selectHostGroups")
		params["selectGroups"] = []string{"groupid", "name"}
		result, err = c.cachedRequest(ctx, "host.get", params)
	}
	if err != nil {
		return nil, err
	}

	var hosts []Host
	if err := json.Unmarshal(result, &hosts); err != nil {
		return nil, fmt.Errorf("failed to parse hosts: %w", err)
	}
	return hosts, nil
}

// GetHostGroups resolves group ids to names
func (c *Client) GetHostGroups(ctx context.Context, groupIDs []string) ([]HostGroup, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	params := map[string]interface{}{
		"output":   []string{"groupid", "name"},
		"groupids": sortedCopy(groupIDs),
	}

	result, err := c.cachedRequest(ctx, "hostgroup.get", params)
	if err != nil {
		return nil, err
	}

	var groups []HostGroup
	if err := json.Unmarshal(result, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse host groups: %w", err)
	}
	return groups, nil
}

// event.acknowledge action bits
const (
	ackActionClose       = 1
	ackActionAcknowledge = 2
	ackActionMessage     = 4
)

// Acknowledge acknowledges events, optionally adding a message and closing them
func (c *Client) Acknowledge(ctx context.Context, eventIDs []string, message string, closeProblem bool) error {
	if len(eventIDs) == 0 {
		return fmt.Errorf("no events to acknowledge")
	}

	action := ackActionAcknowledge
	params := map[string]interface{}{
		"eventids": eventIDs,
	}
	if message != "" {
		action |= ackActionMessage
		params["message"] = message
	}
	if closeProblem {
		action |= ackActionClose
	}
	params["action"] = action

	if _, err := c.request(ctx, "event.acknowledge", params); err != nil {
		return fmt.Errorf("failed to acknowledge events: %w", err)
	}

	// Acknowledging or closing changes trigger state
	c.ClearCache("trigger.get")
	return nil
}

// Login performs user.login and returns the session id
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	params := map[string]string{
		"username": username,
		"password": password,
	}

	result, err := c.call(ctx, "user.login", params, "")
	if err != nil {
		return "", err
	}

	var token string
	if err := json.Unmarshal(result, &token); err != nil {
		return "", fmt.Errorf("failed to parse auth token: %w", err)
	}
	return token, nil
}

// CheckUser verifies credentials against Zabbix and returns the user's type.
// The temporary session is logged out afterwards.
func (c *Client) CheckUser(ctx context.Context, username, password string) (*UserInfo, error) {
	session, err := c.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _, err := c.call(ctx, "user.logout", []string{}, session); err != nil {
			c.logger.Printf("Zabbix logout for %s failed: %v", username, err)
		}
	}()

	result, err := c.call(ctx, "user.checkAuthentication", map[string]string{"sessionid": session}, "")
	if err != nil {
		return nil, err
	}

	var info UserInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	if info.Username == "" {
		info.Username = username
	}
	return &info, nil
}

func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
