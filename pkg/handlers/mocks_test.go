package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/geo"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
	"github.com/harvesthub/harvesthub-engine/pkg/services"
)

// mockAuthService authenticates every request as the configured caller, or
// rejects it when claims is nil.
type mockAuthService struct {
	claims *auth.Claims
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	if m.claims == nil {
		return nil, "", auth.ErrMissingAuthorization
	}
	return m.claims, "token", nil
}

func authAs(userID uuid.UUID, role string) *auth.Middleware {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		Role:             role,
	}
	return auth.NewMiddleware(&mockAuthService{claims: claims}, zap.NewNop())
}

func noScope(next http.HandlerFunc) http.HandlerFunc { return next }

// mockDonationService records its inputs and returns canned results.
type mockDonationService struct {
	donation    *models.Donation
	donations   []*models.Donation
	err         error
	lastCaller  models.Caller
	lastInput   services.CreateDonationInput
	lastCenter  geo.Point
	lastRadius  float64
	lastID      uuid.UUID
	lastDonorID uuid.UUID
}

func (m *mockDonationService) Create(_ context.Context, caller models.Caller, input services.CreateDonationInput) (*models.Donation, error) {
	m.lastCaller, m.lastInput = caller, input
	return m.donation, m.err
}

func (m *mockDonationService) Get(_ context.Context, caller models.Caller, id uuid.UUID) (*models.Donation, error) {
	m.lastCaller, m.lastID = caller, id
	return m.donation, m.err
}

func (m *mockDonationService) ListByDonor(_ context.Context, caller models.Caller, donorID uuid.UUID) ([]*models.Donation, error) {
	m.lastCaller, m.lastDonorID = caller, donorID
	return m.donations, m.err
}

func (m *mockDonationService) ListAvailable(_ context.Context, caller models.Caller) ([]*models.Donation, error) {
	m.lastCaller = caller
	return m.donations, m.err
}

func (m *mockDonationService) FindNearby(_ context.Context, caller models.Caller, center geo.Point, radius float64) ([]*models.Donation, error) {
	m.lastCaller, m.lastCenter, m.lastRadius = caller, center, radius
	return m.donations, m.err
}

func (m *mockDonationService) MarkDelivered(_ context.Context, caller models.Caller, id uuid.UUID) (*models.Donation, error) {
	m.lastCaller, m.lastID = caller, id
	return m.donation, m.err
}

type mockRequestService struct {
	request     *models.Request
	requests    []*models.Request
	err         error
	lastCaller  models.Caller
	lastID      uuid.UUID
	lastMessage string
	lastStatus  string
}

func (m *mockRequestService) Create(_ context.Context, caller models.Caller, donationID uuid.UUID, message string) (*models.Request, error) {
	m.lastCaller, m.lastID, m.lastMessage = caller, donationID, message
	return m.request, m.err
}

func (m *mockRequestService) Get(_ context.Context, caller models.Caller, id uuid.UUID) (*models.Request, error) {
	m.lastCaller, m.lastID = caller, id
	return m.request, m.err
}

func (m *mockRequestService) ListAll(_ context.Context, caller models.Caller) ([]*models.Request, error) {
	m.lastCaller = caller
	return m.requests, m.err
}

func (m *mockRequestService) ListByDonation(_ context.Context, caller models.Caller, donationID uuid.UUID) ([]*models.Request, error) {
	m.lastCaller, m.lastID = caller, donationID
	return m.requests, m.err
}

func (m *mockRequestService) SetStatus(_ context.Context, caller models.Caller, id uuid.UUID, status string) (*models.Request, error) {
	m.lastCaller, m.lastID, m.lastStatus = caller, id, status
	return m.request, m.err
}

type mockUserService struct {
	session   *services.Session
	user      *models.User
	err       error
	lastInput services.RegisterInput
	lastEmail string
}

func (m *mockUserService) Register(_ context.Context, input services.RegisterInput) (*services.Session, error) {
	m.lastInput = input
	return m.session, m.err
}

func (m *mockUserService) Login(_ context.Context, email, _ string) (*services.Session, error) {
	m.lastEmail = email
	return m.session, m.err
}

func (m *mockUserService) Me(context.Context, models.Caller) (*models.User, error) {
	return m.user, m.err
}

var errBoom = errors.New("connection refused")

func serve(mux *http.ServeMux, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func testSession(role string) *services.Session {
	return &services.Session{
		Token:     "signed.jwt.token",
		ExpiresAt: time.Now().Add(time.Hour),
		User:      &models.User{ID: uuid.New(), Name: "Asha", Email: "asha@example.org", Role: role},
	}
}
