package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/zentinel/zentinel/internal/api"
	"github.com/zentinel/zentinel/internal/middleware"
	"github.com/zentinel/zentinel/internal/services"
	"github.com/zentinel/zentinel/internal/utils"
	"github.com/zentinel/zentinel/internal/view"
	"github.com/zentinel/zentinel/internal/zabbix"
)

// notices shown on the dashboard after a redirect
var notices = map[string]string{
	"ack":         "Problem acknowledged.",
	"ack_failed":  "Failed to acknowledge the problem.",
	"digest":      "Digest posted to Slack.",
	"digest_fail": "Failed to post the digest to Slack.",
}

// DashboardHandler serves the dashboard page and its JSON API
type DashboardHandler struct {
	filters        *services.FilterService
	dashboards     *services.DashboardService
	digests        *services.DigestService
	views          *view.Views
	frontendURL    string
	refreshSeconds int
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(
	filters *services.FilterService,
	dashboards *services.DashboardService,
	digests *services.DigestService,
	views *view.Views,
	frontendURL string,
	refreshSeconds int,
) *DashboardHandler {
	return &DashboardHandler{
		filters:        filters,
		dashboards:     dashboards,
		digests:        digests,
		views:          views,
		frontendURL:    frontendURL,
		refreshSeconds: refreshSeconds,
	}
}

// FilterRequest is the JSON form of a filter update
type FilterRequest struct {
	Filter *services.FilterState `json:"filter,omitempty"`
	Reset  bool                  `json:"reset,omitempty"`
}

// maxAckMessage is the longest acknowledge message accepted
const maxAckMessage = 2048

// AcknowledgeRequest is the JSON body of an acknowledge call
type AcknowledgeRequest struct {
	EventIDs []string `json:"eventids" validate:"required,min=1,dive,zbxid"`
	Message  string   `json:"message" validate:"max=2048"`
	Close    bool     `json:"close"`
}

// SetupRoutes registers the dashboard routes. Every route requires a
// Zabbix user session.
func (h *DashboardHandler) SetupRoutes(mux *http.ServeMux) {
	guard := func(fn http.HandlerFunc) http.Handler {
		return middleware.RequireUserType(zabbix.UserTypeZabbixUser, fn)
	}
	mux.Handle("/zentinel", guard(h.handleDashboard))
	mux.Handle("/zentinel/acknowledge", guard(h.handleAcknowledge))
	mux.Handle("/zentinel/digest", guard(h.handleDigestForm))
	mux.Handle("/api/zentinel", guard(h.handleDashboardAPI))
	mux.Handle("/api/zentinel/acknowledge", guard(h.handleAcknowledge))
	mux.Handle("/api/zentinel/digest", guard(h.handleDigestAPI))
}

// handleDashboard handles GET|POST /zentinel
func (h *DashboardHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := api.ParseForm(r); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	page := view.DashboardPage{
		User:           user,
		Layout:         r.Form.Get("layout"),
		FrontendURL:    h.frontendURL,
		RefreshSeconds: h.refreshSeconds,
		DigestEnabled:  h.digests != nil && h.digests.Enabled(),
		Notice:         notices[r.URL.Query().Get("notice")],
	}

	f, changed, err := h.applyFormFilter(r.Context(), r, user)
	if err != nil {
		log.Printf("DashboardHandler: [%s] Filter storage failed for %s: %v", middleware.GetRequestID(r.Context()), user, err)
		page.Error = "Your filter could not be saved or loaded, showing defaults."
	}

	// Posts and filter changes are redirected so a reload does not repeat them
	if (r.Method == http.MethodPost || changed) && err == nil {
		http.Redirect(w, r, "/zentinel?layout="+url.QueryEscape(view.ParseLayout(page.Layout)), http.StatusSeeOther)
		return
	}

	page.Dashboard = h.dashboards.Build(r.Context(), f)
	api.RespondHTML(w, http.StatusOK, h.views.Dashboard(page))
}

// handleDashboardAPI handles GET|POST /api/zentinel
func (h *DashboardHandler) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	var f services.FilterState
	var err error

	if r.Method == http.MethodPost && isJSONRequest(r) {
		var req FilterRequest
		if decodeErr := api.DecodeJSON(r, &req); decodeErr != nil {
			api.RespondError(w, http.StatusBadRequest, decodeErr.Error())
			return
		}
		f, err = h.applyJSONFilter(r.Context(), req, user)
	} else {
		if parseErr := api.ParseForm(r); parseErr != nil {
			api.RespondError(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		f, _, err = h.applyFormFilter(r.Context(), r, user)
	}
	if err != nil {
		log.Printf("DashboardHandler: [%s] Filter storage failed for %s: %v", middleware.GetRequestID(r.Context()), user, err)
	}

	api.RespondJSON(w, http.StatusOK, h.dashboards.Build(r.Context(), f))
}

// applyFormFilter resets, saves or re-sorts the stored filter according to
// the form fields, then returns the user's current filter and whether the
// stored filter was changed. On storage errors the defaults are returned
// along with the error.
func (h *DashboardHandler) applyFormFilter(ctx context.Context, r *http.Request, user string) (services.FilterState, bool, error) {
	var err error
	changed := true
	switch {
	case r.Form.Get("filter_rst") == "1":
		err = h.filters.Reset(ctx, user)
	case r.Form.Get("filter_set") == "1":
		_, err = h.filters.Save(ctx, user, filterFromForm(r))
	case r.Form.Get("sort") != "":
		err = h.filters.SaveSort(ctx, user, r.Form.Get("sort"), r.Form.Get("sortorder"))
	default:
		changed = false
	}
	if err != nil {
		return h.filters.Defaults(), changed, err
	}
	f, err := h.filters.Load(ctx, user)
	return f, changed, err
}

func (h *DashboardHandler) applyJSONFilter(ctx context.Context, req FilterRequest, user string) (services.FilterState, error) {
	var err error
	switch {
	case req.Reset:
		err = h.filters.Reset(ctx, user)
	case req.Filter != nil:
		_, err = h.filters.Save(ctx, user, *req.Filter)
	}
	if err != nil {
		return h.filters.Defaults(), err
	}
	return h.filters.Load(ctx, user)
}

// filterFromForm reads the filter_* fields. Missing sort fields keep their
// defaults, invalid values are coerced when saving.
func filterFromForm(r *http.Request) services.FilterState {
	def := services.DefaultFilterState()

	f := services.FilterState{
		GroupIDs:        api.FormStrings(r, "filter_groupids"),
		HostIDs:         api.FormStrings(r, "filter_hostids"),
		NonProdGroupIDs: api.FormStrings(r, "filter_nonprodids"),
		Ack:             api.FormInt(r, "filter_ack", def.Ack),
		Age:             strings.TrimSpace(r.Form.Get("filter_age")),
		SortField:       def.SortField,
		SortOrder:       def.SortOrder,
		Active:          api.FormInt(r, "filter_active", def.Active),
	}
	if v := r.Form.Get("sort"); v != "" {
		f.SortField = v
	}
	if v := r.Form.Get("sortorder"); v != "" {
		f.SortOrder = strings.ToUpper(v)
	}

	sevs, invalid := api.FormInts(r, "filter_severities")
	if len(invalid) > 0 {
		log.Printf("DashboardHandler: Ignoring invalid severities %v", invalid)
	}
	f.Severities = sevs
	return f
}

// handleAcknowledge handles POST /zentinel/acknowledge and
// POST /api/zentinel/acknowledge
func (h *DashboardHandler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	wantJSON := isJSONRequest(r) || strings.HasPrefix(r.URL.Path, "/api/")

	var req AcknowledgeRequest
	if isJSONRequest(r) {
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Message = utils.SanitizeMessage(req.Message, 0)
	} else {
		if err := api.ParseForm(r); err != nil {
			api.RespondError(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		req.EventIDs = api.FormStrings(r, "eventids")
		// The form has no error display, so long messages are cut instead
		req.Message = utils.SanitizeMessage(r.Form.Get("message"), maxAckMessage)
		req.Close = api.FormHas(r, "close")
	}

	if errs := api.Validate(req); errs != nil {
		if wantJSON {
			api.RespondValidationError(w, errs)
		} else {
			http.Redirect(w, r, "/zentinel?notice=ack_failed", http.StatusSeeOther)
		}
		return
	}

	err := h.dashboards.Acknowledge(r.Context(), req.EventIDs, req.Message, req.Close)
	if err != nil {
		log.Printf("DashboardHandler: [%s] Acknowledge of %v by %s failed: %v", requestID, req.EventIDs, user, err)
	} else {
		log.Printf("DashboardHandler: [%s] %s acknowledged events %v", requestID, user, req.EventIDs)
	}

	if wantJSON {
		if err != nil {
			api.RespondErrorWithCode(w, http.StatusBadGateway, "zabbix_error", "Failed to acknowledge problems")
			return
		}
		api.RespondJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": req.EventIDs})
		return
	}

	notice := "ack"
	if err != nil {
		notice = "ack_failed"
	}
	http.Redirect(w, r, "/zentinel?notice="+notice, http.StatusSeeOther)
}

// handleDigestAPI handles POST /api/zentinel/digest
func (h *DashboardHandler) handleDigestAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	res, err := h.sendDigest(r.Context())
	switch {
	case errors.Is(err, services.ErrDigestDisabled):
		api.RespondErrorWithCode(w, http.StatusServiceUnavailable, "digest_disabled", "Slack digest is not configured")
	case err != nil:
		api.RespondErrorWithCode(w, http.StatusBadGateway, "slack_error", "Failed to post digest")
	default:
		api.RespondJSON(w, http.StatusOK, res)
	}
}

// handleDigestForm handles POST /zentinel/digest from the dashboard button
func (h *DashboardHandler) handleDigestForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	notice := "digest"
	if _, err := h.sendDigest(r.Context()); err != nil {
		notice = "digest_fail"
	}
	http.Redirect(w, r, "/zentinel?notice="+notice, http.StatusSeeOther)
}

// sendDigest posts the digest for the caller's stored filter
func (h *DashboardHandler) sendDigest(ctx context.Context) (*services.DigestResult, error) {
	if h.digests == nil {
		return nil, services.ErrDigestDisabled
	}

	user := middleware.GetUserFromContext(ctx)
	f, err := h.filters.Load(ctx, user)
	if err != nil {
		log.Printf("DashboardHandler: [%s] Failed to load filter of %s for digest: %v", middleware.GetRequestID(ctx), user, err)
	}

	res, err := h.digests.Send(ctx, f)
	if err != nil && !errors.Is(err, services.ErrDigestDisabled) {
		log.Printf("DashboardHandler: [%s] Digest requested by %s failed: %v", middleware.GetRequestID(ctx), user, err)
	}
	return res, err
}
