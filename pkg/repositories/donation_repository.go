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
	"github.com/harvesthub/harvesthub-engine/pkg/geo"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
)

// DonationRepository defines the interface for donation data access.
//
// Status transitions are conditional updates: they succeed only when the row
// is still in the expected status, and return ErrConflict otherwise. The row
// lock taken by the UPDATE serializes concurrent transitions of one donation.
type DonationRepository interface {
	Create(ctx context.Context, donation *models.Donation) error
	// GetByID returns the donation with its donor summary.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	// GetByIDForShare reads the donation holding a FOR SHARE row lock until
	// the surrounding transaction ends.
	GetByIDForShare(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	ListByDonor(ctx context.Context, donorID uuid.UUID) ([]*models.Donation, error)
	ListByStatus(ctx context.Context, status string) ([]*models.Donation, error)
	// ListWithinBounds returns donations with the given status whose location
	// falls inside box. Callers apply the exact distance filter.
	ListWithinBounds(ctx context.Context, status string, box geo.Box) ([]*models.Donation, error)
	// MarkClaimed moves available → claimed and assigns the volunteer.
	MarkClaimed(ctx context.Context, id, volunteerID uuid.UUID) (*models.Donation, error)
	// MarkDelivered moves claimed → delivered.
	MarkDelivered(ctx context.Context, id uuid.UUID) (*models.Donation, error)
}

// donationRepository implements DonationRepository using PostgreSQL.
type donationRepository struct{}

// NewDonationRepository creates a new donation repository.
func NewDonationRepository() DonationRepository {
	return &donationRepository{}
}

const donationColumns = `d.id, d.donor_id, d.food_type, d.quantity, d.preparation_time, d.expiry_date,
	d.address, d.longitude, d.latitude, d.status, d.volunteer_id, d.version, d.created_at, d.updated_at`

const donationWithDonorSelect = `
	SELECT ` + donationColumns + `, u.name, u.email
	FROM donations d
	JOIN users u ON u.id = d.donor_id`

func (r *donationRepository) Create(ctx context.Context, donation *models.Donation) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if donation.ID == uuid.Nil {
		donation.ID = uuid.New()
	}
	now := time.Now().UTC()
	donation.Status = models.DonationStatusAvailable
	donation.VolunteerID = nil
	donation.Version = 1
	donation.CreatedAt = now
	donation.UpdatedAt = now

	query := `
		INSERT INTO donations (id, donor_id, food_type, quantity, preparation_time, expiry_date,
			address, longitude, latitude, status, volunteer_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, $11, $12, $13)`

	_, err = q.Exec(ctx, query,
		donation.ID,
		donation.DonorID,
		donation.FoodType,
		donation.Quantity,
		donation.PreparationTime,
		donation.ExpiryDate,
		donation.Address,
		donation.Location.Lon,
		donation.Location.Lat,
		donation.Status,
		donation.Version,
		donation.CreatedAt,
		donation.UpdatedAt,
	)
	if err != nil {
		if database.IsCheckViolation(err) {
			return fmt.Errorf("%w: donation violates a data constraint", apperrors.ErrValidation)
		}
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: donor does not exist", apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to create donation: %w", err)
	}

	return nil
}

func (r *donationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := donationWithDonorSelect + ` WHERE d.id = $1`
	donation, err := scanDonation(q.QueryRow(ctx, query, id), true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: donation %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return donation, nil
}

func (r *donationRepository) GetByIDForShare(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + donationColumns + ` FROM donations d WHERE d.id = $1 FOR SHARE`
	donation, err := scanDonation(q.QueryRow(ctx, query, id), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: donation %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to lock donation: %w", err)
	}
	return donation, nil
}

func (r *donationRepository) ListByDonor(ctx context.Context, donorID uuid.UUID) ([]*models.Donation, error) {
	query := donationWithDonorSelect + ` WHERE d.donor_id = $1 ORDER BY d.created_at DESC, d.id`
	return r.list(ctx, query, donorID)
}

func (r *donationRepository) ListByStatus(ctx context.Context, status string) ([]*models.Donation, error) {
	query := donationWithDonorSelect + ` WHERE d.status = $1 ORDER BY d.created_at DESC, d.id`
	return r.list(ctx, query, status)
}

func (r *donationRepository) ListWithinBounds(ctx context.Context, status string, box geo.Box) ([]*models.Donation, error) {
	// A box that wraps the antimeridian is the union of two longitude ranges.
	lonClause := `d.longitude BETWEEN $4 AND $5`
	if box.CrossesAntimeridian() {
		lonClause = `(d.longitude >= $4 OR d.longitude <= $5)`
	}

	query := donationWithDonorSelect + `
		WHERE d.status = $1
		  AND d.latitude BETWEEN $2 AND $3
		  AND ` + lonClause
	return r.list(ctx, query, status, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
}

func (r *donationRepository) MarkClaimed(ctx context.Context, id, volunteerID uuid.UUID) (*models.Donation, error) {
	return r.transition(ctx, id, models.DonationStatusAvailable, models.DonationStatusClaimed, &volunteerID)
}

func (r *donationRepository) MarkDelivered(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	return r.transition(ctx, id, models.DonationStatusClaimed, models.DonationStatusDelivered, nil)
}

// transition applies from → to as a single compare-and-set. A nil volunteerID
// keeps the current assignment.
func (r *donationRepository) transition(ctx context.Context, id uuid.UUID, from, to string, volunteerID *uuid.UUID) (*models.Donation, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE donations d
		SET status = $3,
		    volunteer_id = COALESCE($4, d.volunteer_id),
		    version = d.version + 1,
		    updated_at = now()
		WHERE d.id = $1 AND d.status = $2
		RETURNING ` + donationColumns

	donation, err := scanDonation(q.QueryRow(ctx, query, id, from, to, volunteerID), false)
	if err == nil {
		return donation, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update donation status: %w", err)
	}

	// Nothing matched: either the donation is gone or its status moved on.
	var current string
	err = q.QueryRow(ctx, `SELECT status FROM donations WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: donation %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read donation status: %w", err)
	}
	return nil, fmt.Errorf("%w: donation is %s, expected %s", apperrors.ErrConflict, current, from)
}

func (r *donationRepository) list(ctx context.Context, query string, args ...any) ([]*models.Donation, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	defer rows.Close()

	donations := make([]*models.Donation, 0)
	for rows.Next() {
		donation, err := scanDonation(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}
		donations = append(donations, donation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating donations: %w", err)
	}

	return donations, nil
}

func scanDonation(row pgx.Row, withDonor bool) (*models.Donation, error) {
	var d models.Donation
	dest := []any{
		&d.ID,
		&d.DonorID,
		&d.FoodType,
		&d.Quantity,
		&d.PreparationTime,
		&d.ExpiryDate,
		&d.Address,
		&d.Location.Lon,
		&d.Location.Lat,
		&d.Status,
		&d.VolunteerID,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
	}

	var donor models.UserSummary
	if withDonor {
		dest = append(dest, &donor.Name, &donor.Email)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if withDonor {
		donor.ID = d.DonorID
		d.Donor = &donor
	}
	return &d, nil
}

var _ DonationRepository = (*donationRepository)(nil)
