package services

import (
	"context"
	"errors"
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

// ClaimCoordinator applies an administrator's decision on a request and, on
// acceptance, claims the donation for the requesting volunteer.
type ClaimCoordinator interface {
	// Resolve runs in one transaction. Either the request is decided and (when
	// accepted) the donation claimed, or nothing changes. The returned
	// donation is nil for rejections.
	Resolve(ctx context.Context, requestID uuid.UUID, status string, adminID uuid.UUID) (*models.Request, *models.Donation, error)
}

type claimCoordinator struct {
	tx           database.TxRunner
	requestRepo  repositories.RequestRepository
	donationRepo repositories.DonationRepository
	publisher    broadcast.Publisher
	auditor      *audit.SecurityAuditor
	logger       *zap.Logger
}

// NewClaimCoordinator creates a new claim coordinator with dependencies.
func NewClaimCoordinator(
	tx database.TxRunner,
	requestRepo repositories.RequestRepository,
	donationRepo repositories.DonationRepository,
	publisher broadcast.Publisher,
	logger *zap.Logger,
) ClaimCoordinator {
	return &claimCoordinator{
		tx:           tx,
		requestRepo:  requestRepo,
		donationRepo: donationRepo,
		publisher:    publisher,
		auditor:      audit.NewSecurityAuditor(logger),
		logger:       logger.Named("claims"),
	}
}

func (c *claimCoordinator) Resolve(ctx context.Context, requestID uuid.UUID, status string, adminID uuid.UUID) (*models.Request, *models.Donation, error) {
	if !models.IsDecisionStatus(status) {
		return nil, nil, fmt.Errorf("%w: status must be %s or %s", apperrors.ErrValidation,
			models.RequestStatusAccepted, models.RequestStatusRejected)
	}

	var request *models.Request
	var donation *models.Donation

	err := c.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		request, err = c.requestRepo.Decide(ctx, requestID, status, adminID)
		if err != nil {
			return err
		}

		if status == models.RequestStatusAccepted {
			// Fails with ErrConflict if another request already claimed the
			// donation; the decision above rolls back with it.
			if _, err = c.donationRepo.MarkClaimed(ctx, request.DonationID, request.VolunteerID); err != nil {
				return err
			}
			if donation, err = c.donationRepo.GetByID(ctx, request.DonationID); err != nil {
				return err
			}
		}

		// Re-read so the response and events carry the same summaries as
		// the list endpoints.
		request, err = c.requestRepo.GetByID(ctx, requestID)
		return err
	})
	if err != nil {
		c.logger.Info("Request decision not applied",
			zap.String("request_id", requestID.String()),
			zap.String("status", status),
			zap.Error(err))
		c.auditor.LogRequestDecision(ctx, audit.DecisionDetails{
			RequestID: requestID,
			Status:    status,
			Outcome:   decisionOutcome(err),
		})
		return nil, nil, err
	}

	c.auditor.LogRequestDecision(ctx, audit.DecisionDetails{
		RequestID:  requestID,
		DonationID: request.DonationID,
		Status:     status,
		Outcome:    "applied",
	})

	c.logger.Info("Request decided",
		zap.String("request_id", requestID.String()),
		zap.String("status", status),
		zap.String("admin_id", adminID.String()))

	if donation != nil {
		publish(ctx, c.publisher, c.logger, broadcast.EventDonationStatusUpdated, donation)
	}
	publish(ctx, c.publisher, c.logger, broadcast.EventRequestStatusUpdated, request)

	return request, donation, nil
}

func decisionOutcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	}
	return "error"
}

var _ ClaimCoordinator = (*claimCoordinator)(nil)
