package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/services"
)

// RequestHandler handles request ledger HTTP requests.
type RequestHandler struct {
	requestService services.RequestService
	logger         *zap.Logger
}

// NewRequestHandler creates a new request handler.
func NewRequestHandler(requestService services.RequestService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
		logger:         logger,
	}
}

// RegisterRoutes registers the request handler's routes on the given mux.
func (h *RequestHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	base := "/api/requests"

	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(scope(h.ListAll)))
	mux.HandleFunc("GET "+base+"/donation/{donationId}", authMiddleware.RequireAuth(scope(h.ListByDonation)))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(scope(h.Get)))
	mux.HandleFunc("PUT "+base+"/{id}", authMiddleware.RequireAuth(scope(h.UpdateStatus)))
}

type createRequestRequest struct {
	DonationID string `json:"donationId"`
	Message    string `json:"message"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// Create handles POST /api/requests
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	var req createRequestRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	// An absent id is left to the service, which reports it as missing.
	donationID := uuid.Nil
	if req.DonationID != "" {
		var err error
		donationID, err = uuid.Parse(req.DonationID)
		if err != nil {
			badRequest(w, h.logger, "invalid_donation_id", "Invalid donation ID format")
			return
		}
	}

	request, err := h.requestService.Create(r.Context(), caller, donationID, req.Message)
	if err != nil {
		writeServiceError(w, h.logger, "create request", err)
		return
	}

	writeResponse(w, h.logger, http.StatusCreated, request)
}

// ListAll handles GET /api/requests
func (h *RequestHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	requests, err := h.requestService.ListAll(r.Context(), caller)
	if err != nil {
		writeServiceError(w, h.logger, "list requests", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, nonNil(requests))
}

// ListByDonation handles GET /api/requests/donation/{donationId}
func (h *RequestHandler) ListByDonation(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	donationID, ok := parseUUID(w, r, "donationId", "invalid_donation_id", "Invalid donation ID format", h.logger)
	if !ok {
		return
	}

	requests, err := h.requestService.ListByDonation(r.Context(), caller, donationID)
	if err != nil {
		writeServiceError(w, h.logger, "list donation requests", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, nonNil(requests))
}

// Get handles GET /api/requests/{id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseRequestID(w, r, h.logger)
	if !ok {
		return
	}

	request, err := h.requestService.Get(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, h.logger, "get request", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, request)
}

// UpdateStatus handles PUT /api/requests/{id}
func (h *RequestHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseRequestID(w, r, h.logger)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	request, err := h.requestService.SetStatus(r.Context(), caller, id, req.Status)
	if err != nil {
		writeServiceError(w, h.logger, "update request status", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, request)
}
