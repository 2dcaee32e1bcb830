package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/middleware"
	"github.com/harvesthub/harvesthub-engine/pkg/services"
)

// AuthHandler handles registration, login and the current-user lookup.
type AuthHandler struct {
	userService    services.UserService
	cookieSettings auth.CookieSettings
	logger         *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(userService services.UserService, cookieSettings auth.CookieSettings, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		userService:    userService,
		cookieSettings: cookieSettings,
		logger:         logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware, limiter *middleware.RateLimiter) {
	mux.HandleFunc("POST /api/auth/register", limiter.Limit(scope(h.Register)))
	mux.HandleFunc("POST /api/auth/login", limiter.Limit(scope(h.Login)))
	mux.HandleFunc("GET /api/auth/me", authMiddleware.RequireAuth(scope(h.Me)))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	session, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "register user", err)
		return
	}

	auth.SetAuthCookie(w, session.Token, session.ExpiresAt, h.cookieSettings)
	writeResponse(w, h.logger, http.StatusCreated, session)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	session, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, "log in", err)
		return
	}

	auth.SetAuthCookie(w, session.Token, session.ExpiresAt, h.cookieSettings)
	writeResponse(w, h.logger, http.StatusOK, session)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.userService.Me(r.Context(), caller)
	if err != nil {
		writeServiceError(w, h.logger, "load current user", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, user)
}
