package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zentinel/zentinel/internal/api"
	"golang.org/x/crypto/bcrypt"
)

// SessionCookieName carries the JWT for browser sessions
const SessionCookieName = "zentinel_session"

// UserClaims represents the JWT claims for a user
type UserClaims struct {
	Username string `json:"username"`
	// UserType mirrors the Zabbix user type (1 user, 2 admin, 3 super admin)
	UserType int `json:"user_type"`
	jwt.RegisteredClaims
}

// Session is the authenticated user attached to a request
type Session struct {
	Username string
	UserType int
}

// JWTAuthConfig holds JWT authentication configuration
type JWTAuthConfig struct {
	// Enabled determines if JWT authentication is enforced
	Enabled bool

	// AdminUsername is the admin username from env
	AdminUsername string

	// AdminPasswordHash is the bcrypt hash of the admin password
	AdminPasswordHash string

	// JWTSecret is the secret key for signing JWT tokens
	JWTSecret string

	// JWTExpiryHours is the token expiry in hours
	JWTExpiryHours int

	// SkipPaths are paths that don't require authentication.
	// A trailing "*" matches by prefix.
	SkipPaths []string

	// LoginPath is where unauthenticated browsers are redirected
	LoginPath string
}

// JWTAuthMiddleware provides JWT-based authentication
type JWTAuthMiddleware struct {
	config  *JWTAuthConfig
	mu      sync.RWMutex
	skipMap map[string]bool
}

type sessionContextKey struct{}

// NewJWTAuthMiddleware creates a new JWT authentication middleware
func NewJWTAuthMiddleware(config *JWTAuthConfig) *JWTAuthMiddleware {
	m := &JWTAuthMiddleware{
		config:  config,
		skipMap: make(map[string]bool),
	}

	for _, path := range config.SkipPaths {
		m.skipMap[path] = true
	}

	return m
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword checks if the provided password matches the hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Expiry returns the configured token lifetime
func (m *JWTAuthMiddleware) Expiry() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.JWTExpiryHours) * time.Hour
}

// GenerateToken generates a JWT token for a user
func (m *JWTAuthMiddleware) GenerateToken(username string, userType int) (string, error) {
	m.mu.RLock()
	secret := m.config.JWTSecret
	m.mu.RUnlock()

	now := time.Now()
	claims := UserClaims{
		Username: username,
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.Expiry())),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "zentinel",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a JWT token and returns the claims
func (m *JWTAuthMiddleware) ValidateToken(tokenString string) (*UserClaims, error) {
	m.mu.RLock()
	secret := m.config.JWTSecret
	m.mu.RUnlock()

	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer("zentinel"))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// ValidateAdminCredentials checks the built-in admin account
func (m *JWTAuthMiddleware) ValidateAdminCredentials(username, password string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config.AdminPasswordHash == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(m.config.AdminUsername)) != 1 {
		return false
	}

	return CheckPassword(password, m.config.AdminPasswordHash)
}

// Wrap wraps an http.Handler with JWT authentication
func (m *JWTAuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		enabled := m.config.Enabled
		m.mu.RUnlock()

		if !enabled || m.shouldSkipAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := extractToken(r)
		if tokenString == "" {
			m.unauthorized(w, r, "Missing authentication token")
			return
		}

		claims, err := m.ValidateToken(tokenString)
		if err != nil {
			log.Printf("JWTAuthMiddleware: Invalid token from %s: %v", r.RemoteAddr, err)
			m.unauthorized(w, r, "Invalid or expired token")
			return
		}

		ctx := WithSession(r.Context(), Session{Username: claims.Username, UserType: claims.UserType})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// shouldSkipAuth checks if the path should skip authentication
func (m *JWTAuthMiddleware) shouldSkipAuth(path string) bool {
	if m.skipMap[path] {
		return true
	}

	for skipPath := range m.skipMap {
		if strings.HasSuffix(skipPath, "*") && strings.HasPrefix(path, strings.TrimSuffix(skipPath, "*")) {
			return true
		}
	}

	return false
}

// extractToken reads a Bearer token, falling back to the session cookie
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// unauthorized redirects page requests to the login form and answers API
// calls with a JSON 401
func (m *JWTAuthMiddleware) unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	if m.config.LoginPath != "" && wantsHTML(r) {
		target := m.config.LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	w.Header().Set("WWW-Authenticate", "Bearer realm=\"zentinel\"")
	api.RespondError(w, http.StatusUnauthorized, message)
}

func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws/") {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// RequireUserType rejects sessions below the given Zabbix user type
func RequireUserType(minType int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			api.RespondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if session.UserType < minType {
			log.Printf("RequireUserType: user '%s' (type %d) denied %s", session.Username, session.UserType, r.URL.Path)
			api.RespondErrorWithCode(w, http.StatusForbidden, "insufficient_role", "No permissions to view this page")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetSessionCookie stores the token for browser sessions
func SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiry time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(expiry.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the browser session
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// WithSession attaches a session to the context
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session attached by Wrap
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(Session)
	return s, ok
}

// GetUserFromContext returns the username from the request context
func GetUserFromContext(ctx context.Context) string {
	s, _ := SessionFromContext(ctx)
	return s.Username
}
