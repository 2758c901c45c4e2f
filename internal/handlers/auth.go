package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/zentinel/zentinel/internal/api"
	"github.com/zentinel/zentinel/internal/middleware"
	"github.com/zentinel/zentinel/internal/utils"
	"github.com/zentinel/zentinel/internal/view"
	"github.com/zentinel/zentinel/internal/zabbix"
)

// UserChecker verifies credentials against Zabbix
type UserChecker interface {
	CheckUser(ctx context.Context, username, password string) (*zabbix.UserInfo, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	jwtAuth *middleware.JWTAuthMiddleware
	zabbix  UserChecker
	views   *view.Views
}

// NewAuthHandler creates a new authentication handler. When checker is nil
// only the built-in admin account can log in.
func NewAuthHandler(jwtAuth *middleware.JWTAuthMiddleware, checker UserChecker, views *view.Views) *AuthHandler {
	return &AuthHandler{
		jwtAuth: jwtAuth,
		zabbix:  checker,
		views:   views,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	UserType  int    `json:"user_type"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// SetupRoutes sets up authentication routes
func (h *AuthHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/login", h.handleLoginPage)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/verify", h.handleVerify)
}

// handleLoginPage handles GET /login
func (h *AuthHandler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	api.RespondHTML(w, http.StatusOK, h.views.Login(view.LoginPage{Next: safeNext(r.URL.Query().Get("next"))}))
}

// handleLogin handles POST /auth/login. JSON bodies get a token back,
// form posts get a session cookie and a redirect.
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if isJSONRequest(r) {
		h.handleLoginJSON(w, r)
		return
	}

	if err := api.ParseForm(r); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	page := view.LoginPage{
		Username: strings.TrimSpace(r.PostForm.Get("username")),
		Next:     safeNext(r.PostForm.Get("next")),
	}
	password := r.PostForm.Get("password")

	if page.Username == "" || password == "" {
		page.Error = "Username and password are required"
		api.RespondHTML(w, http.StatusBadRequest, h.views.Login(page))
		return
	}

	userType, ok := h.authenticate(r.Context(), page.Username, password, r.RemoteAddr)
	if !ok {
		page.Error = "Invalid username or password"
		api.RespondHTML(w, http.StatusUnauthorized, h.views.Login(page))
		return
	}

	token, err := h.jwtAuth.GenerateToken(page.Username, userType)
	if err != nil {
		log.Printf("AuthHandler: Failed to generate token for user '%s': %v", page.Username, err)
		page.Error = "Failed to start session"
		api.RespondHTML(w, http.StatusInternalServerError, h.views.Login(page))
		return
	}

	middleware.SetSessionCookie(w, r, token, h.jwtAuth.Expiry())
	target := page.Next
	if target == "" {
		target = "/zentinel"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *AuthHandler) handleLoginJSON(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if errs := api.Validate(req); errs != nil {
		api.RespondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	userType, ok := h.authenticate(r.Context(), req.Username, req.Password, r.RemoteAddr)
	if !ok {
		api.RespondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := h.jwtAuth.GenerateToken(req.Username, userType)
	if err != nil {
		log.Printf("AuthHandler: Failed to generate token for user '%s': %v", req.Username, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	api.RespondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		Username:  req.Username,
		UserType:  userType,
		ExpiresIn: int(h.jwtAuth.Expiry().Seconds()),
	})
}

// authenticate checks the admin account first, then Zabbix. It returns the
// Zabbix user type of the account.
func (h *AuthHandler) authenticate(ctx context.Context, username, password, remote string) (int, bool) {
	if h.jwtAuth.ValidateAdminCredentials(username, password) {
		log.Printf("AuthHandler: Admin '%s' logged in from %s", utils.EscapeForLogging(username, 64), remote)
		return zabbix.UserTypeSuperAdmin, true
	}

	if h.zabbix == nil {
		log.Printf("AuthHandler: Failed login attempt for user '%s' from %s", utils.EscapeForLogging(username, 64), remote)
		return 0, false
	}

	info, err := h.zabbix.CheckUser(ctx, username, password)
	if err != nil {
		log.Printf("AuthHandler: Zabbix rejected login for user '%s' from %s: %v", utils.EscapeForLogging(username, 64), remote, err)
		return 0, false
	}

	log.Printf("AuthHandler: Zabbix user '%s' (type %d) logged in from %s", username, info.Type, remote)
	return int(info.Type), true
}

// handleLogout handles POST /auth/logout
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	middleware.ClearSessionCookie(w)
	if isJSONRequest(r) || strings.Contains(r.Header.Get("Accept"), "application/json") {
		api.RespondJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// handleVerify handles GET /auth/verify - verifies if the current token is valid
func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// /auth/* skips the middleware, so validate here
	token := ""
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	} else if c, err := r.Cookie(middleware.SessionCookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		api.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	claims, err := h.jwtAuth.ValidateToken(token)
	if err != nil {
		api.RespondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"username":  claims.Username,
		"user_type": claims.UserType,
	})
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// safeNext only allows local redirect targets
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}
