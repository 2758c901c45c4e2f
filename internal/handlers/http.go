package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/zentinel/zentinel/internal/api"
	"github.com/zentinel/zentinel/internal/view"
	"gorm.io/gorm"
)

// Version is reported by the health endpoint
var Version = "1.0.0"

// HTTPHandler handles health and static endpoints
type HTTPHandler struct {
	db        *gorm.DB
	startedAt time.Time
}

// NewHTTPHandler creates a new HTTP handler. db may be nil.
func NewHTTPHandler(db *gorm.DB) *HTTPHandler {
	return &HTTPHandler{
		db:        db,
		startedAt: time.Now(),
	}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/static/", view.StaticHandler())
	mux.HandleFunc("/", h.handleRoot)
}

// handleRoot sends browsers to the dashboard
func (h *HTTPHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/zentinel", http.StatusFound)
}

// handleHealth returns a simple health check response
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": int64(time.Since(h.startedAt) / time.Second),
	}

	status := http.StatusOK
	if h.db != nil {
		if err := h.pingDB(r.Context()); err != nil {
			log.Printf("Health check: database unavailable: %v", err)
			response["status"] = "degraded"
			response["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			response["database"] = "ok"
		}
	}

	api.RespondJSON(w, status, response)
}

func (h *HTTPHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
