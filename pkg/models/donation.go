package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/harvesthub/harvesthub-engine/pkg/geo"
)

// Donation status constants.
const (
	DonationStatusAvailable = "available"
	DonationStatusClaimed   = "claimed"
	DonationStatusDelivered = "delivered"
)

// Donation is a surplus-food offer posted by a donor.
//
// VolunteerID is set if and only if Status is claimed or delivered.
type Donation struct {
	ID              uuid.UUID  `json:"id"`
	DonorID         uuid.UUID  `json:"donorId"`
	FoodType        string     `json:"foodType"`
	Quantity        int        `json:"quantity"`
	PreparationTime time.Time  `json:"preparationTime"`
	ExpiryDate      time.Time  `json:"expiryDate"`
	Address         string     `json:"address"`
	Location        geo.Point  `json:"location"`
	Status          string     `json:"status"`
	VolunteerID     *uuid.UUID `json:"volunteerId"`
	Version         int        `json:"version"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	// Populated on read paths, not stored on the donation row.
	Donor          *UserSummary `json:"donor,omitempty"`
	DistanceMeters *float64     `json:"distanceMeters,omitempty"`
}

// IsAvailable reports whether the donation can still be requested.
func (d *Donation) IsAvailable() bool {
	return d.Status == DonationStatusAvailable
}

// HasConsistentVolunteer checks the volunteer/status invariant.
func (d *Donation) HasConsistentVolunteer() bool {
	assigned := d.Status == DonationStatusClaimed || d.Status == DonationStatusDelivered
	return assigned == (d.VolunteerID != nil)
}

// DonationSummary is the subset of a donation embedded in request views.
type DonationSummary struct {
	ID       uuid.UUID `json:"id"`
	FoodType string    `json:"foodType"`
	Quantity int       `json:"quantity"`
	Status   string    `json:"status"`
}
