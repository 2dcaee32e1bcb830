package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/audit"
	"github.com/harvesthub/harvesthub-engine/pkg/broadcast"
	"github.com/harvesthub/harvesthub-engine/pkg/database"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
	"github.com/harvesthub/harvesthub-engine/pkg/repositories"
)

// RequestService is the request ledger.
type RequestService interface {
	// Create records a volunteer's pickup request for an available donation.
	Create(ctx context.Context, caller models.Caller, donationID uuid.UUID, message string) (*models.Request, error)
	Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Request, error)
	ListAll(ctx context.Context, caller models.Caller) ([]*models.Request, error)
	// ListByDonation is limited to the donor who owns the donation.
	ListByDonation(ctx context.Context, caller models.Caller, donationID uuid.UUID) ([]*models.Request, error)
	// SetStatus accepts or rejects a pending request.
	SetStatus(ctx context.Context, caller models.Caller, id uuid.UUID, status string) (*models.Request, error)
}

type requestService struct {
	tx           database.TxRunner
	requestRepo  repositories.RequestRepository
	donationRepo repositories.DonationRepository
	claims       ClaimCoordinator
	publisher    broadcast.Publisher
	auditor      *audit.SecurityAuditor
	logger       *zap.Logger
}

// NewRequestService creates a new request service with dependencies.
func NewRequestService(
	tx database.TxRunner,
	requestRepo repositories.RequestRepository,
	donationRepo repositories.DonationRepository,
	claims ClaimCoordinator,
	publisher broadcast.Publisher,
	logger *zap.Logger,
) RequestService {
	return &requestService{
		tx:           tx,
		requestRepo:  requestRepo,
		donationRepo: donationRepo,
		claims:       claims,
		publisher:    publisher,
		auditor:      audit.NewSecurityAuditor(logger),
		logger:       logger.Named("requests"),
	}
}

func (s *requestService) Create(ctx context.Context, caller models.Caller, donationID uuid.UUID, message string) (*models.Request, error) {
	if err := requireRole(caller, "request donations", models.RoleVolunteer); err != nil {
		return nil, err
	}
	if donationID == uuid.Nil {
		return nil, fmt.Errorf("%w: donationId is required", apperrors.ErrValidation)
	}
	message, err := cleanText(ctx, s.auditor, "message", message, MaxMessageLength)
	if err != nil {
		return nil, err
	}

	request := &models.Request{
		DonationID:  donationID,
		VolunteerID: caller.UserID,
		Message:     message,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// The share lock keeps a concurrent claim from committing between
		// the availability check and the insert.
		donation, err := s.donationRepo.GetByIDForShare(ctx, donationID)
		if err != nil {
			return err
		}
		if !donation.IsAvailable() {
			return fmt.Errorf("%w: donation is %s", apperrors.ErrConflict, donation.Status)
		}
		return s.requestRepo.Create(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Request created",
		zap.String("request_id", request.ID.String()),
		zap.String("donation_id", donationID.String()),
		zap.String("volunteer_id", caller.UserID.String()))

	publish(ctx, s.publisher, s.logger, broadcast.EventNewRequest, request)
	return request, nil
}

func (s *requestService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Request, error) {
	request, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch caller.Role {
	case models.RoleAdmin:
		return request, nil
	case models.RoleVolunteer:
		if request.VolunteerID == caller.UserID {
			return request, nil
		}
	case models.RoleDonor:
		donation, err := s.donationRepo.GetByID(ctx, request.DonationID)
		if err != nil {
			return nil, err
		}
		if donation.DonorID == caller.UserID {
			return request, nil
		}
	}
	return nil, fmt.Errorf("%w: not a party to this request", apperrors.ErrForbidden)
}

func (s *requestService) ListAll(ctx context.Context, caller models.Caller) ([]*models.Request, error) {
	if err := requireRole(caller, "list all requests", models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.requestRepo.ListAll(ctx)
}

func (s *requestService) ListByDonation(ctx context.Context, caller models.Caller, donationID uuid.UUID) ([]*models.Request, error) {
	if err := requireRole(caller, "list requests for a donation", models.RoleDonor); err != nil {
		return nil, err
	}

	donation, err := s.donationRepo.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation.DonorID != caller.UserID {
		return nil, fmt.Errorf("%w: donation belongs to another donor", apperrors.ErrForbidden)
	}

	return s.requestRepo.ListByDonation(ctx, donationID)
}

func (s *requestService) SetStatus(ctx context.Context, caller models.Caller, id uuid.UUID, status string) (*models.Request, error) {
	if err := requireRole(caller, "decide requests", models.RoleAdmin); err != nil {
		return nil, err
	}

	request, _, err := s.claims.Resolve(ctx, id, status, caller.UserID)
	if err != nil {
		return nil, err
	}
	return request, nil
}

var _ RequestService = (*requestService)(nil)
