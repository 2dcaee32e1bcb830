package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/middleware"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
)

func setupAuthMux(svc *mockUserService, authMiddleware *auth.Middleware) *http.ServeMux {
	mux := http.NewServeMux()
	h := NewAuthHandler(svc, auth.CookieSettings{Secure: true}, zap.NewNop())
	h.RegisterRoutes(mux, authMiddleware, noScope, middleware.NewRateLimiter(600, 100, zap.NewNop()))
	return mux
}

func TestAuthHandler_Register(t *testing.T) {
	svc := &mockUserService{session: testSession(models.RoleVolunteer)}
	mux := setupAuthMux(svc, authAs(uuid.New(), models.RoleVolunteer))

	body := `{"name":"Asha","email":"asha@example.org","password":"password1","role":"volunteer",
		"location":{"type":"Point","coordinates":[77.2,28.6]}}`
	rec := serve(mux, http.MethodPost, "/api/auth/register", strings.NewReader(body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "volunteer", svc.lastInput.Role)
	assert.Contains(t, rec.Body.String(), `"token":"signed.jwt.token"`)
	assert.NotContains(t, rec.Body.String(), "password")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
}

func TestAuthHandler_Login(t *testing.T) {
	svc := &mockUserService{session: testSession(models.RoleDonor)}
	mux := setupAuthMux(svc, authAs(uuid.New(), models.RoleDonor))

	rec := serve(mux, http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"asha@example.org","password":"x"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "asha@example.org", svc.lastEmail)

	svc.err = fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	rec = serve(mux, http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"asha@example.org","password":"x"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestAuthHandler_LoginRateLimited(t *testing.T) {
	svc := &mockUserService{session: testSession(models.RoleDonor)}
	mux := http.NewServeMux()
	NewAuthHandler(svc, auth.CookieSettings{}, zap.NewNop()).
		RegisterRoutes(mux, authAs(uuid.New(), models.RoleDonor), noScope, middleware.NewRateLimiter(1, 1, zap.NewNop()))

	rec := serve(mux, http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@example.org","password":"x"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(mux, http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@example.org","password":"x"}`))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAuthHandler_Me(t *testing.T) {
	userID := uuid.New()
	svc := &mockUserService{user: &models.User{ID: userID, Name: "Ravi", Role: models.RoleVolunteer, PasswordHash: "hash"}}
	mux := setupAuthMux(svc, authAs(userID, models.RoleVolunteer))

	rec := serve(mux, http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ravi")
	assert.NotContains(t, rec.Body.String(), "hash")

	mux = setupAuthMux(svc, auth.NewMiddleware(&mockAuthService{}, zap.NewNop()))
	rec = serve(mux, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
