package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zentinel/zentinel/internal/middleware"
	"github.com/zentinel/zentinel/internal/services"
	"github.com/zentinel/zentinel/internal/zabbix"
)

// DashboardMessageType is the type of a live dashboard message
type DashboardMessageType string

const (
	DashboardMessageTypeSnapshot DashboardMessageType = "snapshot"
)

// DashboardMessage is pushed to connected dashboards
type DashboardMessage struct {
	Type      DashboardMessageType `json:"type"`
	Dashboard *services.Dashboard  `json:"dashboard,omitempty"`
	Error     string               `json:"error,omitempty"`
}

const wsWriteTimeout = 10 * time.Second

// DashboardWSHandler pushes fresh dashboard snapshots over a websocket
type DashboardWSHandler struct {
	upgrader   websocket.Upgrader
	filters    *services.FilterService
	dashboards *services.DashboardService
	interval   time.Duration
}

// NewDashboardWSHandler creates a live dashboard handler that refreshes
// every interval
func NewDashboardWSHandler(filters *services.FilterService, dashboards *services.DashboardService, interval time.Duration) *DashboardWSHandler {
	return &DashboardWSHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		filters:    filters,
		dashboards: dashboards,
		interval:   interval,
	}
}

// SetupRoutes configures WebSocket routes
func (h *DashboardWSHandler) SetupRoutes(mux *http.ServeMux) {
	mux.Handle("/ws/zentinel", middleware.RequireUserType(zabbix.UserTypeZabbixUser, http.HandlerFunc(h.HandleWebSocket)))
}

// HandleWebSocket sends a snapshot on connect and on every tick until the
// client goes away
func (h *DashboardWSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("Dashboard client %s connected from %s", user, r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The read loop only watches for the close frame
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("WebSocket read error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := h.sendSnapshot(ctx, conn, user); err != nil {
			log.Printf("Dashboard client %s disconnected: %v", user, err)
			return
		}

		select {
		case <-ctx.Done():
			log.Printf("Dashboard client %s disconnected", user)
			return
		case <-ticker.C:
		}
	}
}

func (h *DashboardWSHandler) sendSnapshot(ctx context.Context, conn *websocket.Conn, user string) error {
	msg := DashboardMessage{Type: DashboardMessageTypeSnapshot}

	f, err := h.filters.Load(ctx, user)
	if err != nil {
		log.Printf("DashboardWSHandler: Failed to load filter for %s: %v", user, err)
		msg.Error = "filter unavailable, showing defaults"
	}
	msg.Dashboard = h.dashboards.Build(ctx, f)

	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
