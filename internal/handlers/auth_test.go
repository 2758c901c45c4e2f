package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/zentinel/zentinel/internal/middleware"
	"github.com/zentinel/zentinel/internal/view"
	"github.com/zentinel/zentinel/internal/zabbix"
)

type stubChecker struct {
	users map[string]int // "user:password" -> type
	calls int
}

func (s *stubChecker) CheckUser(_ context.Context, username, password string) (*zabbix.UserInfo, error) {
	s.calls++
	typ, ok := s.users[username+":"+password]
	if !ok {
		return nil, &zabbix.APIError{Code: -32500, Message: "Application error.", Data: "Incorrect user name or password or account is temporarily blocked."}
	}
	return &zabbix.UserInfo{UserID: "1", Username: username, Type: zabbix.FlexInt(typ)}, nil
}

func newTestAuth(t *testing.T) *middleware.JWTAuthMiddleware {
	t.Helper()
	hash, err := middleware.HashPassword("admin-pass")
	if err != nil {
		t.Fatal(err)
	}
	return middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "handler-test-secret",
		JWTExpiryHours:    2,
		SkipPaths:         []string{"/health", "/login", "/auth/*", "/static/*"},
		LoginPath:         "/login",
	})
}

func newTestAuthHandler(t *testing.T, checker UserChecker) *AuthHandler {
	t.Helper()
	views, err := view.New()
	if err != nil {
		t.Fatal(err)
	}
	return NewAuthHandler(newTestAuth(t), checker, views)
}

func jsonLogin(body interface{}) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandler_SetupRoutes(t *testing.T) {
	h := newTestAuthHandler(t, nil)
	mux := http.NewServeMux()

	// Should not panic
	h.SetupRoutes(mux)
}

func TestAuthHandler_handleLogin_MethodNotAllowed(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	methods := []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch}
	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/auth/login", nil)
			w := httptest.NewRecorder()

			h.handleLogin(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("handleLogin(%s) = %d, want %d", method, w.Code, http.StatusMethodNotAllowed)
			}
		})
	}
}

func TestAuthHandler_handleLogin_InvalidJSON(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.handleLogin(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("handleLogin with invalid JSON = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var response map[string]string
	_ = json.NewDecoder(w.Body).Decode(&response)
	if response["error"] != "Invalid request body" {
		t.Errorf("expected 'Invalid request body' error, got %q", response["error"])
	}
}

func TestAuthHandler_handleLogin_MissingCredentials(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"empty username", map[string]string{"username": "", "password": "test"}},
		{"empty password", map[string]string{"username": "test", "password": ""}},
		{"missing fields", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.handleLogin(w, jsonLogin(tt.body))

			if w.Code != http.StatusBadRequest {
				t.Errorf("handleLogin = %d, want %d", w.Code, http.StatusBadRequest)
			}

			var response map[string]string
			_ = json.NewDecoder(w.Body).Decode(&response)
			if response["error"] != "Username and password are required" {
				t.Errorf("unexpected error %q", response["error"])
			}
		})
	}
}

func TestAuthHandler_handleLogin_Admin(t *testing.T) {
	checker := &stubChecker{}
	h := newTestAuthHandler(t, checker)

	w := httptest.NewRecorder()
	h.handleLogin(w, jsonLogin(LoginRequest{Username: "admin", Password: "admin-pass"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp LoginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" || resp.UserType != zabbix.UserTypeSuperAdmin || resp.ExpiresIn != 7200 {
		t.Errorf("unexpected response %+v", resp)
	}
	if checker.calls != 0 {
		t.Error("admin login must not call Zabbix")
	}

	claims, err := h.jwtAuth.ValidateToken(resp.Token)
	if err != nil || claims.Username != "admin" {
		t.Errorf("token not valid: %v %+v", err, claims)
	}
}

func TestAuthHandler_handleLogin_ZabbixUser(t *testing.T) {
	checker := &stubChecker{users: map[string]int{"alice:pw": zabbix.UserTypeZabbixUser}}
	h := newTestAuthHandler(t, checker)

	w := httptest.NewRecorder()
	h.handleLogin(w, jsonLogin(LoginRequest{Username: "alice", Password: "pw"}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp LoginResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.UserType != zabbix.UserTypeZabbixUser {
		t.Errorf("user type = %d", resp.UserType)
	}

	w = httptest.NewRecorder()
	h.handleLogin(w, jsonLogin(LoginRequest{Username: "alice", Password: "wrong"}))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", w.Code)
	}
}

func TestAuthHandler_handleLogin_NoZabbixChecker(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	w := httptest.NewRecorder()
	h.handleLogin(w, jsonLogin(LoginRequest{Username: "alice", Password: "pw"}))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthHandler_handleLogin_Form(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	form := url.Values{"username": {"admin"}, "password": {"admin-pass"}, "next": {"/zentinel?layout=table"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.handleLogin(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/zentinel?layout=table" {
		t.Errorf("Location = %q", loc)
	}
	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("session cookie not set: %+v", session)
	}
}

func TestAuthHandler_handleLogin_FormBadPassword(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	form := url.Values{"username": {"admin"}, "password": {"nope"}, "next": {"https://evil.example.com"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	h.handleLogin(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Invalid username or password") || !strings.Contains(body, `value="admin"`) {
		t.Error("login page should show the error and keep the username")
	}
	if strings.Contains(body, "evil.example.com") {
		t.Error("external next targets must be dropped")
	}
}

func TestAuthHandler_handleLoginPage(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	w := httptest.NewRecorder()
	h.handleLoginPage(w, httptest.NewRequest(http.MethodGet, "/login?next=%2Fzentinel", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `value="/zentinel"`) {
		t.Error("next target should be carried in the form")
	}
}

func TestAuthHandler_handleLogout(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	w := httptest.NewRecorder()
	h.handleLogout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("logout = %d %q", w.Code, w.Header().Get("Location"))
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("session cookie not cleared: %+v", cookies)
	}
}

func TestAuthHandler_handleVerify_MethodNotAllowed(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}
	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/auth/verify", nil)
			w := httptest.NewRecorder()

			h.handleVerify(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Errorf("handleVerify(%s) = %d, want %d", method, w.Code, http.StatusMethodNotAllowed)
			}
		})
	}
}

func TestAuthHandler_handleVerify(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	w := httptest.NewRecorder()
	h.handleVerify(w, httptest.NewRequest(http.MethodGet, "/auth/verify", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("without token = %d, want 401", w.Code)
	}

	token, _ := h.jwtAuth.GenerateToken("alice", 2)
	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	w = httptest.NewRecorder()
	h.handleVerify(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("with cookie = %d", w.Code)
	}
	var resp map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp["username"] != "alice" || resp["user_type"] != float64(2) {
		t.Errorf("unexpected response %v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	h.handleVerify(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token = %d, want 401", w.Code)
	}
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                    "",
		"/zentinel":           "/zentinel",
		"/zentinel?layout=x":  "/zentinel?layout=x",
		"//evil.example.com":  "",
		"/\\evil.example.com": "",
		"https://evil":        "",
		"zentinel":            "",
	}
	for in, want := range tests {
		if got := safeNext(in); got != want {
			t.Errorf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStubChecker_ErrorType(t *testing.T) {
	_, err := (&stubChecker{}).CheckUser(context.Background(), "x", "y")
	var apiErr *zabbix.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("expected *zabbix.APIError, got %T", err)
	}
}
