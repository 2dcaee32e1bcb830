package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/geo"
	"github.com/harvesthub/harvesthub-engine/pkg/services"
)

// DonationHandler handles donation registry HTTP requests.
type DonationHandler struct {
	donationService services.DonationService
	logger          *zap.Logger
}

// NewDonationHandler creates a new donation handler.
func NewDonationHandler(donationService services.DonationService, logger *zap.Logger) *DonationHandler {
	return &DonationHandler{
		donationService: donationService,
		logger:          logger,
	}
}

// RegisterRoutes registers the donation handler's routes on the given mux.
func (h *DonationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	base := "/api/donations"

	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("GET "+base+"/nearby", authMiddleware.RequireAuth(scope(h.Nearby)))
	mux.HandleFunc("GET "+base+"/my-donations", authMiddleware.RequireAuth(scope(h.MyDonations)))
	mux.HandleFunc("GET "+base+"/all-available", authMiddleware.RequireAuth(scope(h.AllAvailable)))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(scope(h.Get)))
	mux.HandleFunc("POST "+base+"/{id}/deliver", authMiddleware.RequireAuth(scope(h.Deliver)))
}

// Create handles POST /api/donations
func (h *DonationHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateDonationInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	donation, err := h.donationService.Create(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, h.logger, "create donation", err)
		return
	}

	writeResponse(w, h.logger, http.StatusCreated, donation)
}

// Nearby handles GET /api/donations/nearby?latitude=&longitude=[&radius=]
func (h *DonationHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	lat, ok := parseFloatQuery(w, r, "latitude", true, 0, h.logger)
	if !ok {
		return
	}
	lon, ok := parseFloatQuery(w, r, "longitude", true, 0, h.logger)
	if !ok {
		return
	}
	radius, ok := parseFloatQuery(w, r, "radius", false, 0, h.logger)
	if !ok {
		return
	}

	donations, err := h.donationService.FindNearby(r.Context(), caller, geo.NewPoint(lon, lat), radius)
	if err != nil {
		writeServiceError(w, h.logger, "find nearby donations", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, nonNil(donations))
}

// MyDonations handles GET /api/donations/my-donations
func (h *DonationHandler) MyDonations(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	donations, err := h.donationService.ListByDonor(r.Context(), caller, caller.UserID)
	if err != nil {
		writeServiceError(w, h.logger, "list donor donations", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, nonNil(donations))
}

// AllAvailable handles GET /api/donations/all-available
func (h *DonationHandler) AllAvailable(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}

	donations, err := h.donationService.ListAvailable(r.Context(), caller)
	if err != nil {
		writeServiceError(w, h.logger, "list available donations", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, nonNil(donations))
}

// Get handles GET /api/donations/{id}
func (h *DonationHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseDonationID(w, r, h.logger)
	if !ok {
		return
	}

	donation, err := h.donationService.Get(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, h.logger, "get donation", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, donation)
}

// Deliver handles POST /api/donations/{id}/deliver
func (h *DonationHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseDonationID(w, r, h.logger)
	if !ok {
		return
	}

	donation, err := h.donationService.MarkDelivered(r.Context(), caller, id)
	if err != nil {
		writeServiceError(w, h.logger, "mark donation delivered", err)
		return
	}

	writeResponse(w, h.logger, http.StatusOK, donation)
}
