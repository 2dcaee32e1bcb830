package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/database"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
)

// RequestRepository defines the interface for pickup request data access.
type RequestRepository interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	// ListAll returns every request, newest first, with donation and volunteer summaries.
	ListAll(ctx context.Context) ([]*models.Request, error)
	ListByDonation(ctx context.Context, donationID uuid.UUID) ([]*models.Request, error)
	// Decide moves a pending request to status and records who decided.
	// Returns ErrConflict if the request is no longer pending.
	Decide(ctx context.Context, id uuid.UUID, status string, decidedBy uuid.UUID) (*models.Request, error)
}

// requestRepository implements RequestRepository using PostgreSQL.
type requestRepository struct{}

// NewRequestRepository creates a new request repository.
func NewRequestRepository() RequestRepository {
	return &requestRepository{}
}

const requestColumns = `r.id, r.donation_id, r.volunteer_id, r.status, r.message,
	r.decided_by, r.decided_at, r.created_at, r.updated_at`

const requestWithSummariesSelect = `
	SELECT ` + requestColumns + `,
	       d.food_type, d.quantity, d.status,
	       v.name, v.email
	FROM requests r
	JOIN donations d ON d.id = r.donation_id
	JOIN users v ON v.id = r.volunteer_id`

func (r *requestRepository) Create(ctx context.Context, request *models.Request) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	now := time.Now().UTC()
	request.Status = models.RequestStatusPending
	request.DecidedBy = nil
	request.DecidedAt = nil
	request.CreatedAt = now
	request.UpdatedAt = now

	query := `
		INSERT INTO requests (id, donation_id, volunteer_id, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = q.Exec(ctx, query,
		request.ID,
		request.DonationID,
		request.VolunteerID,
		request.Status,
		request.Message,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: donation or volunteer does not exist", apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := requestWithSummariesSelect + ` WHERE r.id = $1`
	request, err := scanRequest(q.QueryRow(ctx, query, id), true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return request, nil
}

func (r *requestRepository) ListAll(ctx context.Context) ([]*models.Request, error) {
	return r.list(ctx, requestWithSummariesSelect+` ORDER BY r.created_at DESC, r.id`)
}

func (r *requestRepository) ListByDonation(ctx context.Context, donationID uuid.UUID) ([]*models.Request, error) {
	return r.list(ctx, requestWithSummariesSelect+` WHERE r.donation_id = $1 ORDER BY r.created_at DESC, r.id`, donationID)
}

func (r *requestRepository) Decide(ctx context.Context, id uuid.UUID, status string, decidedBy uuid.UUID) (*models.Request, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE requests r
		SET status = $3, decided_by = $4, decided_at = now(), updated_at = now()
		WHERE r.id = $1 AND r.status = $2
		RETURNING ` + requestColumns

	request, err := scanRequest(q.QueryRow(ctx, query, id, models.RequestStatusPending, status, decidedBy), false)
	if err == nil {
		return request, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	var current string
	err = q.QueryRow(ctx, `SELECT status FROM requests WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request status: %w", err)
	}
	return nil, fmt.Errorf("%w: request already %s", apperrors.ErrConflict, current)
}

func (r *requestRepository) list(ctx context.Context, query string, args ...any) ([]*models.Request, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := make([]*models.Request, 0)
	for rows.Next() {
		request, err := scanRequest(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}

	return requests, nil
}

func scanRequest(row pgx.Row, withSummaries bool) (*models.Request, error) {
	var req models.Request
	dest := []any{
		&req.ID,
		&req.DonationID,
		&req.VolunteerID,
		&req.Status,
		&req.Message,
		&req.DecidedBy,
		&req.DecidedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	}

	var donation models.DonationSummary
	var volunteer models.UserSummary
	if withSummaries {
		dest = append(dest,
			&donation.FoodType, &donation.Quantity, &donation.Status,
			&volunteer.Name, &volunteer.Email,
		)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if withSummaries {
		donation.ID = req.DonationID
		volunteer.ID = req.VolunteerID
		req.Donation = &donation
		req.Volunteer = &volunteer
	}
	return &req, nil
}

var _ RequestRepository = (*requestRepository)(nil)
