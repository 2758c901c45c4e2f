package services

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/zentinel/zentinel/internal/config"
	"github.com/zentinel/zentinel/internal/models"
	"github.com/zentinel/zentinel/internal/zabbix"
)

// UnknownHost labels problems whose trigger could not be resolved
const UnknownHost = "Unknown"

// ZabbixAPI is the part of the Zabbix client the dashboard needs
type ZabbixAPI interface {
	GetProblems(ctx context.Context, q zabbix.ProblemQuery) ([]zabbix.Problem, error)
	GetTriggers(ctx context.Context, triggerIDs []string) ([]zabbix.Trigger, error)
	GetHosts(ctx context.Context, hostIDs []string) ([]zabbix.Host, error)
	GetHostGroups(ctx context.Context, groupIDs []string) ([]zabbix.HostGroup, error)
	Acknowledge(ctx context.Context, eventIDs []string, message string, closeProblem bool) error
}

// EnrichedProblem is a problem joined with its host and classification
type EnrichedProblem struct {
	EventID      string          `json:"eventid"`
	TriggerID    string          `json:"triggerid"`
	Name         string          `json:"name"`
	Clock        time.Time       `json:"clock"`
	Severity     models.Severity `json:"severity"`
	Acknowledged bool            `json:"acknowledged"`
	Resolved     bool            `json:"resolved"`
	HostID       string          `json:"hostid,omitempty"`
	HostName     string          `json:"host_name"`
	GroupIDs     []string        `json:"group_ids"`
	IsProduction bool            `json:"is_production"`
	Age          time.Duration   `json:"-"`
	AgeSeconds   int64           `json:"age_seconds"`
	// TrendLabel is the label of the trend bucket the problem falls into
	TrendLabel string `json:"trend_label,omitempty"`
}

// Dashboard is everything the dashboard page shows
type Dashboard struct {
	Filter        FilterState        `json:"filter"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Stats         Stats              `json:"stats"`
	Production    []EnrichedProblem  `json:"production"`
	NonProduction []EnrichedProblem  `json:"non_production"`
	Groups        []zabbix.HostGroup `json:"groups"`
	Hosts         []zabbix.Host      `json:"hosts"`
	NonProdGroups []zabbix.HostGroup `json:"nonprod_groups"`
}

// DashboardService builds dashboards from the Zabbix API
type DashboardService struct {
	zbx    ZabbixAPI
	config config.DashboardConfig
	now    func() time.Time
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(zbx ZabbixAPI, cfg config.DashboardConfig) *DashboardService {
	return &DashboardService{
		zbx:    zbx,
		config: cfg,
		now:    time.Now,
	}
}

// Build fetches, enriches, sorts and aggregates the problems matching the
// filter. Zabbix failures degrade to empty data and are only logged.
func (s *DashboardService) Build(ctx context.Context, f FilterState) *Dashboard {
	now := s.now()

	problems := s.FetchProblems(ctx, f, now)
	enriched := s.Enrich(ctx, problems, f.NonProdGroupIDs, now)
	SortProblems(enriched, f.SortField, f.SortOrder)

	d := &Dashboard{
		Filter:        f,
		GeneratedAt:   now,
		Stats:         ComputeStats(enriched, now, models.Severity(s.config.HighSeverity), s.config.TrendHours),
		Production:    []EnrichedProblem{},
		NonProduction: []EnrichedProblem{},
	}

	for _, p := range enriched {
		if i, ok := BucketIndex(p.Clock, now, s.config.TrendHours); ok {
			p.TrendLabel = d.Stats.Trend[i].Label
		}
		if p.IsProduction {
			d.Production = append(d.Production, p)
		} else {
			d.NonProduction = append(d.NonProduction, p)
		}
	}

	d.Groups = s.groupNames(ctx, f.GroupIDs)
	d.NonProdGroups = s.groupNames(ctx, f.NonProdGroupIDs)
	if len(f.HostIDs) > 0 {
		hosts, err := s.zbx.GetHosts(ctx, f.HostIDs)
		if err != nil {
			log.Printf("DashboardService: Failed to resolve filter hosts: %v", err)
		}
		d.Hosts = hosts
	}

	return d
}

// FetchProblems runs the problem query for the filter. A failed query
// yields no problems.
func (s *DashboardService) FetchProblems(ctx context.Context, f FilterState, now time.Time) []zabbix.Problem {
	q := zabbix.ProblemQuery{
		GroupIDs:     f.GroupIDs,
		HostIDs:      f.HostIDs,
		Acknowledged: f.AckFilter(),
		Severities:   f.Severities,
		Recent:       true,
		Limit:        s.config.ProblemLimit,
	}
	if age := f.AgeDuration(); age > 0 {
		q.TimeTill = now.Add(-age)
	}

	problems, err := s.zbx.GetProblems(ctx, q)
	if err != nil {
		log.Printf("DashboardService: Problem query failed: %v", err)
		return nil
	}
	return problems
}

// Enrich joins problems with their trigger's primary host and its groups,
// classifies them and drops problems of disabled hosts. When a lookup fails
// the affected problems keep an unknown host with no groups.
func (s *DashboardService) Enrich(ctx context.Context, problems []zabbix.Problem, nonProd []string, now time.Time) []EnrichedProblem {
	if len(problems) == 0 {
		return []EnrichedProblem{}
	}

	triggerIDs := make([]string, 0, len(problems))
	seenTrigger := make(map[string]bool, len(problems))
	for _, p := range problems {
		if !seenTrigger[p.ObjectID] {
			seenTrigger[p.ObjectID] = true
			triggerIDs = append(triggerIDs, p.ObjectID)
		}
	}

	hostByTrigger := make(map[string]zabbix.Host, len(triggerIDs))
	triggers, err := s.zbx.GetTriggers(ctx, triggerIDs)
	if err != nil {
		log.Printf("DashboardService: Trigger lookup failed, hosts unknown: %v", err)
	}
	for _, t := range triggers {
		if h, ok := t.PrimaryHost(); ok {
			hostByTrigger[t.TriggerID] = h
		}
	}

	hostIDs := make([]string, 0, len(hostByTrigger))
	seenHost := make(map[string]bool, len(hostByTrigger))
	for _, h := range hostByTrigger {
		if !seenHost[h.HostID] {
			seenHost[h.HostID] = true
			hostIDs = append(hostIDs, h.HostID)
		}
	}

	hostsByID := make(map[string]zabbix.Host, len(hostIDs))
	hosts, err := s.zbx.GetHosts(ctx, hostIDs)
	if err != nil {
		log.Printf("DashboardService: Host group lookup failed: %v", err)
	}
	for _, h := range hosts {
		hostsByID[h.HostID] = h
	}

	nonProdSet := make(map[string]bool, len(nonProd))
	for _, id := range nonProd {
		nonProdSet[id] = true
	}

	out := make([]EnrichedProblem, 0, len(problems))
	skipped := 0
	for _, p := range problems {
		sev, ok := models.ParseSeverity(p.Severity)
		if !ok {
			sev = models.SeverityNotClassified
		}
		clock := p.Time()
		ep := EnrichedProblem{
			EventID:      p.EventID,
			TriggerID:    p.ObjectID,
			Name:         p.Name,
			Clock:        clock,
			Severity:     sev,
			Acknowledged: p.IsAcknowledged(),
			Resolved:     p.IsResolved(),
			HostName:     UnknownHost,
			GroupIDs:     []string{},
		}
		if age := now.Sub(clock); age > 0 {
			ep.Age = age
			ep.AgeSeconds = int64(age / time.Second)
		}

		if h, ok := hostByTrigger[p.ObjectID]; ok {
			if full, ok := hostsByID[h.HostID]; ok {
				h.Status = firstNonEmpty(full.Status, h.Status)
				ep.GroupIDs = full.GroupIDs()
			}
			if h.IsDisabled() {
				skipped++
				continue
			}
			ep.HostID = h.HostID
			ep.HostName = h.DisplayName()
		}

		ep.IsProduction = IsProduction(ep.GroupIDs, nonProdSet)
		out = append(out, ep)
	}

	if skipped > 0 {
		log.Printf("DashboardService: Skipped %d problems on disabled hosts", skipped)
	}
	return out
}

// IsProduction reports whether a host with the given groups is production:
// it is unless one of its groups is a non-production group.
func IsProduction(groupIDs []string, nonProd map[string]bool) bool {
	for _, id := range groupIDs {
		if nonProd[id] {
			return false
		}
	}
	return true
}

// SortProblems sorts in place by field and order. Ties keep eventid
// descending order.
func SortProblems(problems []EnrichedProblem, field, order string) {
	desc := !strings.EqualFold(order, SortAsc)

	cmp := func(a, b EnrichedProblem) int {
		switch field {
		case SortBySeverity:
			return int(a.Severity) - int(b.Severity)
		case SortByHost:
			return strings.Compare(strings.ToLower(a.HostName), strings.ToLower(b.HostName))
		case SortByName:
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		default:
			return a.Clock.Compare(b.Clock)
		}
	}

	sort.SliceStable(problems, func(i, j int) bool {
		c := cmp(problems[i], problems[j])
		if c == 0 {
			return compareEventIDs(problems[i].EventID, problems[j].EventID) > 0
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// compareEventIDs compares numeric ids without parsing them
func compareEventIDs(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

// Acknowledge acknowledges problems in Zabbix
func (s *DashboardService) Acknowledge(ctx context.Context, eventIDs []string, message string, closeProblem bool) error {
	return s.zbx.Acknowledge(ctx, eventIDs, message, closeProblem)
}

// groupNames resolves group ids for display. Unresolved ids are shown as is.
func (s *DashboardService) groupNames(ctx context.Context, ids []string) []zabbix.HostGroup {
	if len(ids) == 0 {
		return []zabbix.HostGroup{}
	}

	groups, err := s.zbx.GetHostGroups(ctx, ids)
	if err != nil {
		log.Printf("DashboardService: Failed to resolve host groups: %v", err)
	}

	byID := make(map[string]string, len(groups))
	for _, g := range groups {
		byID[g.GroupID] = g.Name
	}
	out := make([]zabbix.HostGroup, 0, len(ids))
	for _, id := range ids {
		name := byID[id]
		if name == "" {
			name = id
		}
		out = append(out, zabbix.HostGroup{GroupID: id, Name: name})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
