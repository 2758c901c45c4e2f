package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestJWTMiddleware(t *testing.T) *JWTAuthMiddleware {
	t.Helper()
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return NewJWTAuthMiddleware(&JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    1,
		SkipPaths:         []string{"/health", "/auth/*"},
		LoginPath:         "/login",
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(GetUserFromContext(r.Context()))) // ignore: test ResponseRecorder never fails
	})
}

func TestJWTAuth_Disabled(t *testing.T) {
	m := NewJWTAuthMiddleware(&JWTAuthConfig{Enabled: false})

	req := httptest.NewRequest(http.MethodGet, "/api/zentinel", nil)
	rec := httptest.NewRecorder()
	m.Wrap(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestJWTAuth_MissingToken_API(t *testing.T) {
	m := newTestJWTMiddleware(t)

	req := httptest.NewRequest(http.MethodGet, "/api/zentinel", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	m.Wrap(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("Expected WWW-Authenticate header")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
}

func TestJWTAuth_MissingToken_BrowserRedirect(t *testing.T) {
	m := newTestJWTMiddleware(t)

	req := httptest.NewRequest(http.MethodGet, "/zentinel?layout=table", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	m.Wrap(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected status 303, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?next=") || !strings.Contains(loc, "%2Fzentinel") {
		t.Errorf("Unexpected redirect location %q", loc)
	}
}

func TestJWTAuth_SkipPaths(t *testing.T) {
	m := newTestJWTMiddleware(t)

	for _, path := range []string{"/health", "/auth/login", "/auth/verify"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		m.Wrap(okHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, rec.Code)
		}
	}
}

func TestJWTAuth_BearerToken(t *testing.T) {
	m := newTestJWTMiddleware(t)
	token, err := m.GenerateToken("alice", 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/zentinel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Wrap(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "alice" {
		t.Errorf("Expected user alice in context, got %q", rec.Body.String())
	}
}

func TestJWTAuth_SessionCookie(t *testing.T) {
	m := newTestJWTMiddleware(t)
	token, _ := m.GenerateToken("bob", 2)

	req := httptest.NewRequest(http.MethodGet, "/zentinel", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	m.Wrap(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "bob" {
		t.Errorf("Expected 200/bob, got %d/%q", rec.Code, rec.Body.String())
	}
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	m := newTestJWTMiddleware(t)
	other := NewJWTAuthMiddleware(&JWTAuthConfig{JWTSecret: "other-secret", JWTExpiryHours: 1})
	token, _ := other.GenerateToken("mallory", 3)

	req := httptest.NewRequest(http.MethodGet, "/api/zentinel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Wrap(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	m := newTestJWTMiddleware(t)
	claims := UserClaims{
		Username: "alice",
		UserType: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    "zentinel",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.ValidateToken(token); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}

func TestJWTAuth_ValidateToken_Claims(t *testing.T) {
	m := newTestJWTMiddleware(t)
	token, _ := m.GenerateToken("carol", 3)

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "carol" || claims.UserType != 3 {
		t.Errorf("Unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > time.Hour {
		t.Errorf("Unexpected expiry: %v", claims.ExpiresAt)
	}
}

func TestJWTAuth_ValidateAdminCredentials(t *testing.T) {
	m := newTestJWTMiddleware(t)

	tests := []struct {
		user, pass string
		want       bool
	}{
		{"admin", "secret", true},
		{"admin", "wrong", false},
		{"Admin", "secret", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := m.ValidateAdminCredentials(tt.user, tt.pass); got != tt.want {
			t.Errorf("ValidateAdminCredentials(%q, %q) = %v, want %v", tt.user, tt.pass, got, tt.want)
		}
	}

	noAdmin := NewJWTAuthMiddleware(&JWTAuthConfig{AdminUsername: "admin"})
	if noAdmin.ValidateAdminCredentials("admin", "") {
		t.Error("Expected login to fail without a configured password")
	}
}

func TestRequireUserType(t *testing.T) {
	handler := RequireUserType(1, okHandler())

	tests := []struct {
		name    string
		session *Session
		want    int
	}{
		{"no session", nil, http.StatusUnauthorized},
		{"guest", &Session{Username: "guest", UserType: 0}, http.StatusForbidden},
		{"user", &Session{Username: "u", UserType: 1}, http.StatusOK},
		{"super admin", &Session{Username: "sa", UserType: 3}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/zentinel", nil)
			if tt.session != nil {
				req = req.WithContext(WithSession(req.Context(), *tt.session))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestSessionCookie_SetAndClear(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	SetSessionCookie(rec, req, "tok", time.Hour)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName || cookies[0].Value != "tok" {
		t.Fatalf("Unexpected cookies: %+v", cookies)
	}
	if !cookies[0].HttpOnly || cookies[0].MaxAge != 3600 {
		t.Errorf("Unexpected cookie attributes: %+v", cookies[0])
	}

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec)
	cookies = rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("Expected expired cookie, got %+v", cookies)
	}
}
