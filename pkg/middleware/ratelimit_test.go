package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRateLimiter_PerClientBudget(t *testing.T) {
	limiter := NewRateLimiter(60, 2, zap.NewNop())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	handler := limiter.Limit(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000"))

	// One token per second refills.
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1003"))
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(60, 1, zap.NewNop())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.allow("10.0.0.1")
	limiter.allow("10.0.0.2")
	assert.Len(t, limiter.clients, 2)

	now = now.Add(2 * clientTTL)
	limiter.allow("10.0.0.3")
	assert.Len(t, limiter.clients, 1)
}

func TestRateLimiter_AuditsRefusals(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	limiter := NewRateLimiter(60, 1, zap.New(core))
	handler := limiter.Limit(func(w http.ResponseWriter, r *http.Request) {})

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
		req.RemoteAddr = "192.0.2.9:5555"
		handler(httptest.NewRecorder(), req)
	}

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "security_audit", entry.LoggerName)
	assert.Equal(t, "/api/auth/register", entry.ContextMap()["path"])
	assert.Equal(t, "192.0.2.9", entry.ContextMap()["client_ip"])
}
