package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zentinel/zentinel/internal/testhelpers"
)

func TestNewHTTPHandler(t *testing.T) {
	h := NewHTTPHandler(nil)
	if h == nil {
		t.Fatal("NewHTTPHandler returned nil")
	}
	if h.db != nil {
		t.Error("db should be nil when passed nil")
	}
	if h.startedAt.IsZero() {
		t.Error("startedAt should be set")
	}
}

func TestHTTPHandler_handleHealth(t *testing.T) {
	h := NewHTTPHandler(nil)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkBody      bool
	}{
		{
			name:           "GET returns 200 OK",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			checkBody:      true,
		},
		{
			name:           "POST returns 405 Method Not Allowed",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
			checkBody:      false,
		},
		{
			name:           "PUT returns 405 Method Not Allowed",
			method:         http.MethodPut,
			expectedStatus: http.StatusMethodNotAllowed,
			checkBody:      false,
		},
		{
			name:           "DELETE returns 405 Method Not Allowed",
			method:         http.MethodDelete,
			expectedStatus: http.StatusMethodNotAllowed,
			checkBody:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			h.handleHealth(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("handleHealth() status = %d, want %d", w.Code, tt.expectedStatus)
			}

			if tt.checkBody {
				var response map[string]interface{}
				if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if response["status"] != "ok" {
					t.Errorf("status = %v, want ok", response["status"])
				}
				if response["version"] != Version {
					t.Errorf("version = %v, want %s", response["version"], Version)
				}
				if _, ok := response["database"]; ok {
					t.Error("database should not be reported without a db")
				}
			}
		})
	}
}

func TestHTTPHandler_handleHealth_WithDatabase(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	h := NewHTTPHandler(db)

	w := httptest.NewRecorder()
	h.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var response map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&response)
	if response["database"] != "ok" {
		t.Errorf("database = %v, want ok", response["database"])
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	_ = sqlDB.Close()

	w = httptest.NewRecorder()
	h.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("closed db status = %d, want 503", w.Code)
	}
	response = nil
	_ = json.NewDecoder(w.Body).Decode(&response)
	if response["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", response["status"])
	}
}

func TestHTTPHandler_Routes(t *testing.T) {
	h := NewHTTPHandler(nil)
	mux := http.NewServeMux()
	h.SetupRoutes(mux)

	tests := []struct {
		name     string
		path     string
		status   int
		location string
		contains string
	}{
		{name: "root redirects to dashboard", path: "/", status: http.StatusFound, location: "/zentinel"},
		{name: "unknown path", path: "/nope", status: http.StatusNotFound},
		{name: "script", path: "/static/zentinel.js", status: http.StatusOK, contains: "ZentinelFilter"},
		{name: "stylesheet", path: "/static/zentinel.css", status: http.StatusOK},
		{name: "missing static file", path: "/static/missing.js", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.status {
				t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.status)
			}
			if tt.location != "" && w.Header().Get("Location") != tt.location {
				t.Errorf("Location = %q, want %q", w.Header().Get("Location"), tt.location)
			}
			if tt.contains != "" && !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body does not contain %q", tt.contains)
			}
		})
	}
}
