package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zentinel/zentinel/internal/api"
	"github.com/zentinel/zentinel/internal/models"
	"github.com/zentinel/zentinel/internal/services"
	"github.com/zentinel/zentinel/internal/utils"
	"github.com/zentinel/zentinel/internal/zabbix"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Layouts of the problem board
const (
	LayoutKanban = "kanban"
	LayoutTable  = "table"
)

// ParseLayout returns a known layout, kanban by default
func ParseLayout(s string) string {
	if strings.EqualFold(s, LayoutTable) {
		return LayoutTable
	}
	return LayoutKanban
}

// DashboardPage is the data of the dashboard page
type DashboardPage struct {
	User           string
	Dashboard      *services.Dashboard
	Layout         string
	FrontendURL    string
	RefreshSeconds int
	DigestEnabled  bool
	Notice         string
	Error          string
}

// LoginPage is the data of the login form
type LoginPage struct {
	Username string
	Next     string
	Error    string
}

// Views renders the HTML pages
type Views struct {
	templates *template.Template
}

// New parses the embedded templates
func New() (*Views, error) {
	tmpl, err := template.New("zentinel").Funcs(funcMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Views{templates: tmpl}, nil
}

// Dashboard returns a renderer for the dashboard page
func (v *Views) Dashboard(page DashboardPage) api.Renderer {
	page.Layout = ParseLayout(page.Layout)
	return v.renderer("dashboard", page)
}

// Login returns a renderer for the login page
func (v *Views) Login(page LoginPage) api.Renderer {
	return v.renderer("login", page)
}

func (v *Views) renderer(name string, data interface{}) api.Renderer {
	return api.RenderFunc(func(buf *bytes.Buffer) error {
		return v.templates.ExecuteTemplate(buf, name, data)
	})
}

// StaticHandler serves the embedded script and stylesheet
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// KanbanColumn is one severity column of the board
type KanbanColumn struct {
	Severity models.Severity
	Problems []services.EnrichedProblem
}

// KanbanColumns groups problems by severity, most urgent first. Every
// severity gets a column, empty or not.
func KanbanColumns(problems []services.EnrichedProblem) []KanbanColumn {
	cols := make([]KanbanColumn, 0, len(models.AllSeverities))
	for _, sev := range models.AllSeverities {
		col := KanbanColumn{Severity: sev}
		for _, p := range problems {
			if p.Severity == sev {
				col.Problems = append(col.Problems, p)
			}
		}
		cols = append(cols, col)
	}
	return cols
}

// SortLink builds the query string of a sortable column header. Clicking
// the active column flips its order.
func SortLink(f services.FilterState, layout, field string) string {
	order := services.SortAsc
	if f.SortField == field && f.SortOrder == services.SortAsc {
		order = services.SortDesc
	}
	q := url.Values{}
	q.Set("sort", field)
	q.Set("sortorder", order)
	q.Set("layout", ParseLayout(layout))
	return "?" + q.Encode()
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"severityLabel": func(s models.Severity) string { return s.Label() },
		"severityStyle": func(s models.Severity) string { return s.Style() },
		"severities":    func() []models.Severity { return models.AllSeverities },
		"age":           utils.FormatAge,
		"number":        utils.FormatNumber,
		"truncate":      utils.TruncateText,
		"datetime": func(t time.Time) string {
			return t.Local().Format("2006-01-02 15:04:05")
		},
		"historyURL": func(frontendURL string, p services.EnrichedProblem) string {
			return services.HistoryURL(frontendURL, p)
		},
		"joinIDs": func(ids []string) string { return strings.Join(ids, ",") },
		"groupNames": func(groups []zabbix.HostGroup) string {
			names := make([]string, 0, len(groups))
			for _, g := range groups {
				names = append(names, g.Name)
			}
			return strings.Join(names, ", ")
		},
		"hostNames": func(hosts []zabbix.Host) string {
			names := make([]string, 0, len(hosts))
			for _, h := range hosts {
				names = append(names, h.DisplayName())
			}
			return strings.Join(names, ", ")
		},
		"hasSeverity": func(f services.FilterState, s models.Severity) bool {
			return f.HasSeverity(int(s))
		},
		"kanban":   KanbanColumns,
		"sortLink": SortLink,
		"sortMark": func(f services.FilterState, field string) string {
			if f.SortField != field {
				return ""
			}
			if f.SortOrder == services.SortAsc {
				return "▲"
			}
			return "▼"
		},
		"dict": dict,
	}
}

// dict builds a map from alternating keys and values, for passing several
// values to a nested template
func dict(kv ...interface{}) (map[string]interface{}, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("dict needs an even number of arguments")
	}
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", kv[i])
		}
		m[key] = kv[i+1]
	}
	return m, nil
}
