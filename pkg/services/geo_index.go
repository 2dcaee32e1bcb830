package services

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/geo"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
	"github.com/harvesthub/harvesthub-engine/pkg/repositories"
)

// GeoIndex answers radius queries over donation locations.
type GeoIndex interface {
	// FindNearby returns donations with the given status whose great-circle
	// distance from center is at most radiusMeters, nearest first. Each
	// result carries DistanceMeters.
	FindNearby(ctx context.Context, center geo.Point, radiusMeters float64, status string) ([]*models.Donation, error)
}

type geoIndex struct {
	donationRepo repositories.DonationRepository
}

// NewGeoIndex creates a GeoIndex backed by the donation table.
func NewGeoIndex(donationRepo repositories.DonationRepository) GeoIndex {
	return &geoIndex{donationRepo: donationRepo}
}

func (g *geoIndex) FindNearby(ctx context.Context, center geo.Point, radiusMeters float64, status string) ([]*models.Donation, error) {
	if err := center.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius must be a positive number", apperrors.ErrValidation)
	}

	// The box is a superset of the circle; containment is decided by Distance alone.
	candidates, err := g.donationRepo.ListWithinBounds(ctx, status, geo.BoundingBox(center, radiusMeters))
	if err != nil {
		return nil, fmt.Errorf("failed to query donations near %v: %w", center, err)
	}

	results := make([]*models.Donation, 0, len(candidates))
	for _, d := range candidates {
		dist := geo.Distance(center, d.Location)
		if dist > radiusMeters {
			continue
		}
		d.DistanceMeters = &dist
		results = append(results, d)
	}

	slices.SortStableFunc(results, func(a, b *models.Donation) int {
		switch {
		case *a.DistanceMeters < *b.DistanceMeters:
			return -1
		case *a.DistanceMeters > *b.DistanceMeters:
			return 1
		}
		return 0
	})

	return results, nil
}

var _ GeoIndex = (*geoIndex)(nil)
