package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/audit"
	"github.com/harvesthub/harvesthub-engine/pkg/broadcast"
	"github.com/harvesthub/harvesthub-engine/pkg/geo"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
	"github.com/harvesthub/harvesthub-engine/pkg/repositories"
)

// CreateDonationInput carries the donor-supplied fields of a new donation.
type CreateDonationInput struct {
	FoodType        string     `json:"foodType"`
	Quantity        int        `json:"quantity"`
	PreparationTime time.Time  `json:"preparationTime"`
	ExpiryDate      time.Time  `json:"expiryDate"`
	Address         string     `json:"address"`
	Location        *geo.Point `json:"location"`
}

// NearbyOptions tunes FindNearby. A zero radius selects the configured default.
type NearbyOptions struct {
	DefaultRadiusMeters float64
	MaxRadiusMeters     float64
}

// DonationService is the donation registry.
type DonationService interface {
	Create(ctx context.Context, caller models.Caller, input CreateDonationInput) (*models.Donation, error)
	Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Donation, error)
	// ListByDonor returns a donor's donations, newest first. Donors may only
	// list their own.
	ListByDonor(ctx context.Context, caller models.Caller, donorID uuid.UUID) ([]*models.Donation, error)
	ListAvailable(ctx context.Context, caller models.Caller) ([]*models.Donation, error)
	// FindNearby lists available donations within radiusMeters of center.
	FindNearby(ctx context.Context, caller models.Caller, center geo.Point, radiusMeters float64) ([]*models.Donation, error)
	// MarkDelivered completes a claimed donation. Allowed for the assigned
	// volunteer and administrators.
	MarkDelivered(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Donation, error)
}

type donationService struct {
	donationRepo repositories.DonationRepository
	geoIndex     GeoIndex
	publisher    broadcast.Publisher
	nearby       NearbyOptions
	auditor      *audit.SecurityAuditor
	logger       *zap.Logger
}

// NewDonationService creates a new donation service with dependencies.
func NewDonationService(
	donationRepo repositories.DonationRepository,
	geoIndex GeoIndex,
	publisher broadcast.Publisher,
	nearby NearbyOptions,
	logger *zap.Logger,
) DonationService {
	return &donationService{
		donationRepo: donationRepo,
		geoIndex:     geoIndex,
		publisher:    publisher,
		nearby:       nearby,
		auditor:      audit.NewSecurityAuditor(logger),
		logger:       logger.Named("donations"),
	}
}

func (s *donationService) Create(ctx context.Context, caller models.Caller, input CreateDonationInput) (*models.Donation, error) {
	if err := requireRole(caller, "create donations", models.RoleDonor); err != nil {
		return nil, err
	}

	donation, err := validateDonationInput(ctx, s.auditor, input)
	if err != nil {
		return nil, err
	}
	donation.DonorID = caller.UserID

	if err := s.donationRepo.Create(ctx, donation); err != nil {
		return nil, err
	}

	s.logger.Info("Donation created",
		zap.String("donation_id", donation.ID.String()),
		zap.String("donor_id", donation.DonorID.String()))

	publish(ctx, s.publisher, s.logger, broadcast.EventNewDonation, donation)
	return donation, nil
}

func validateDonationInput(ctx context.Context, auditor *audit.SecurityAuditor, input CreateDonationInput) (*models.Donation, error) {
	foodType, err := cleanText(ctx, auditor, "foodType", input.FoodType, MaxShortTextLength)
	if err != nil {
		return nil, err
	}
	address, err := cleanText(ctx, auditor, "address", input.Address, MaxShortTextLength)
	if err != nil {
		return nil, err
	}

	var missing []string
	if foodType == "" {
		missing = append(missing, "foodType")
	}
	if input.Quantity == 0 {
		missing = append(missing, "quantity")
	}
	if input.PreparationTime.IsZero() {
		missing = append(missing, "preparationTime")
	}
	if input.ExpiryDate.IsZero() {
		missing = append(missing, "expiryDate")
	}
	if address == "" {
		missing = append(missing, "address")
	}
	if input.Location == nil {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields %v", apperrors.ErrValidation, missing)
	}

	if input.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", apperrors.ErrValidation)
	}
	if !input.ExpiryDate.After(input.PreparationTime) {
		return nil, fmt.Errorf("%w: expiryDate must be after preparationTime", apperrors.ErrValidation)
	}
	if err := input.Location.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	return &models.Donation{
		FoodType:        foodType,
		Quantity:        input.Quantity,
		PreparationTime: input.PreparationTime.UTC(),
		ExpiryDate:      input.ExpiryDate.UTC(),
		Address:         address,
		Location:        *input.Location,
	}, nil
}

func (s *donationService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Donation, error) {
	return s.donationRepo.GetByID(ctx, id)
}

func (s *donationService) ListByDonor(ctx context.Context, caller models.Caller, donorID uuid.UUID) ([]*models.Donation, error) {
	if err := requireRole(caller, "list donor donations", models.RoleDonor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if caller.Role == models.RoleDonor && caller.UserID != donorID {
		return nil, fmt.Errorf("%w: donors can only list their own donations", apperrors.ErrForbidden)
	}
	return s.donationRepo.ListByDonor(ctx, donorID)
}

func (s *donationService) ListAvailable(ctx context.Context, caller models.Caller) ([]*models.Donation, error) {
	if err := requireRole(caller, "list available donations", models.RoleVolunteer, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.donationRepo.ListByStatus(ctx, models.DonationStatusAvailable)
}

func (s *donationService) FindNearby(ctx context.Context, caller models.Caller, center geo.Point, radiusMeters float64) ([]*models.Donation, error) {
	if err := requireRole(caller, "search nearby donations", models.RoleVolunteer, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.geoIndex.FindNearby(ctx, center, s.effectiveRadius(radiusMeters), models.DonationStatusAvailable)
}

// effectiveRadius applies the configured default and ceiling.
func (s *donationService) effectiveRadius(requested float64) float64 {
	if requested <= 0 {
		return s.nearby.DefaultRadiusMeters
	}
	if s.nearby.MaxRadiusMeters > 0 && requested > s.nearby.MaxRadiusMeters {
		return s.nearby.MaxRadiusMeters
	}
	return requested
}

func (s *donationService) MarkDelivered(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Donation, error) {
	if err := requireRole(caller, "mark donations delivered", models.RoleVolunteer, models.RoleAdmin); err != nil {
		return nil, err
	}

	current, err := s.donationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// The assigned volunteer cannot change once claimed, so this check
	// cannot go stale before the conditional update below.
	if caller.Role == models.RoleVolunteer && (current.VolunteerID == nil || *current.VolunteerID != caller.UserID) {
		return nil, fmt.Errorf("%w: only the assigned volunteer can deliver this donation", apperrors.ErrForbidden)
	}

	donation, err := s.donationRepo.MarkDelivered(ctx, id)
	if err != nil {
		return nil, err
	}
	donation.Donor = current.Donor

	s.logger.Info("Donation delivered",
		zap.String("donation_id", id.String()),
		zap.String("by", caller.UserID.String()))

	publish(ctx, s.publisher, s.logger, broadcast.EventDonationStatusUpdated, donation)
	return donation, nil
}

// publish announces a change. Failures are logged and never undo the change.
func publish(ctx context.Context, publisher broadcast.Publisher, logger *zap.Logger, event string, payload any) {
	if err := publisher.Publish(ctx, event, payload); err != nil {
		logger.Warn("Failed to broadcast event",
			zap.String("event", event),
			zap.Error(err))
	}
}

var _ DonationService = (*donationService)(nil)
