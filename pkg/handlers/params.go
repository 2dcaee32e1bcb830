package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ScopeMiddleware attaches a database scope to the request context.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// ParseDonationID extracts and validates the donation ID from the request path.
// Expects path parameter: id
func ParseDonationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_donation_id", "Invalid donation ID format", logger)
}

// ParseRequestID extracts and validates the request ID from the request path.
// Expects path parameter: id
func ParseRequestID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_request_id", "Invalid request ID format", logger)
}

func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		badRequest(w, logger, errorCode, errorMessage)
		return uuid.Nil, false
	}
	return id, true
}

// parseFloatQuery reads a numeric query parameter. Missing optional values
// return def.
func parseFloatQuery(w http.ResponseWriter, r *http.Request, name string, required bool, def float64, logger *zap.Logger) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			badRequest(w, logger, "missing_parameter", name+" is required")
			return 0, false
		}
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		badRequest(w, logger, "invalid_parameter", name+" must be a number")
		return 0, false
	}
	return v, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		badRequest(w, logger, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

// requireCaller returns the authenticated caller placed in context by
// auth.Middleware.
func requireCaller(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.Caller, bool) {
	caller, err := auth.CallerFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return models.Caller{}, false
	}
	return caller, true
}
