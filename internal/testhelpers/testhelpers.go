// Package testhelpers provides reusable testing utilities for Zentinel.
//
// This package contains:
// - HTTP test helpers (requests, recorders, assertions)
// - A fake Zabbix JSON-RPC server
// - Builders for Zabbix API rows
// - An in-memory profile database
package testhelpers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zentinel/zentinel/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ========================================
// HTTP Test Helpers
// ========================================

// HTTPTestContext holds components for HTTP handler testing
type HTTPTestContext struct {
	T        *testing.T
	Recorder *httptest.ResponseRecorder
	Request  *http.Request
}

// NewHTTPTestContext creates a new HTTP test context
func NewHTTPTestContext(t *testing.T, method, path string, body io.Reader) *HTTPTestContext {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	return &HTTPTestContext{
		T:        t,
		Recorder: httptest.NewRecorder(),
		Request:  req,
	}
}

// NewFormContext creates a POST request with an urlencoded form body
func NewFormContext(t *testing.T, path, form string) *HTTPTestContext {
	t.Helper()
	ctx := NewHTTPTestContext(t, http.MethodPost, path, strings.NewReader(form))
	ctx.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ctx
}

// WithHeader adds a header to the request
func (ctx *HTTPTestContext) WithHeader(key, value string) *HTTPTestContext {
	ctx.Request.Header.Set(key, value)
	return ctx
}

// WithBearerToken adds Authorization Bearer header
func (ctx *HTTPTestContext) WithBearerToken(token string) *HTTPTestContext {
	return ctx.WithHeader("Authorization", "Bearer "+token)
}

// Execute runs the handler and returns the response
func (ctx *HTTPTestContext) Execute(handler http.Handler) *HTTPTestContext {
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	return ctx
}

// AssertStatus checks the response status code
func (ctx *HTTPTestContext) AssertStatus(expected int) *HTTPTestContext {
	ctx.T.Helper()
	if ctx.Recorder.Code != expected {
		ctx.T.Errorf("expected status %d, got %d (body: %s)", expected, ctx.Recorder.Code, ctx.Recorder.Body.String())
	}
	return ctx
}

// AssertBodyContains checks the response body contains a substring
func (ctx *HTTPTestContext) AssertBodyContains(substr string) *HTTPTestContext {
	ctx.T.Helper()
	if !strings.Contains(ctx.Recorder.Body.String(), substr) {
		ctx.T.Errorf("expected body to contain %q", substr)
	}
	return ctx
}

// AssertBodyNotContains checks the response body does not contain a substring
func (ctx *HTTPTestContext) AssertBodyNotContains(substr string) *HTTPTestContext {
	ctx.T.Helper()
	if strings.Contains(ctx.Recorder.Body.String(), substr) {
		ctx.T.Errorf("expected body to not contain %q", substr)
	}
	return ctx
}

// AssertHeader checks a response header value
func (ctx *HTTPTestContext) AssertHeader(key, expected string) *HTTPTestContext {
	ctx.T.Helper()
	if got := ctx.Recorder.Header().Get(key); got != expected {
		ctx.T.Errorf("expected header %s=%q, got %q", key, expected, got)
	}
	return ctx
}

// DecodeJSON decodes the response body into v
func (ctx *HTTPTestContext) DecodeJSON(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	if err := json.Unmarshal(ctx.Recorder.Body.Bytes(), v); err != nil {
		ctx.T.Fatalf("failed to decode response JSON: %v (body: %s)", err, ctx.Recorder.Body.String())
	}
	return ctx
}

// ========================================
// Database
// ========================================

// NewTestDB opens a migrated in-memory sqlite database
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// Every pooled connection to :memory: would get its own empty database
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}
