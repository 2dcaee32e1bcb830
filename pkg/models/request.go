package models

import (
	"time"

	"github.com/google/uuid"
)

// Request status constants.
const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusRejected = "rejected"
)

// Request is a volunteer's bid to pick up a donation. It leaves pending
// exactly once, by an administrator decision.
type Request struct {
	ID          uuid.UUID  `json:"id"`
	DonationID  uuid.UUID  `json:"donationId"`
	VolunteerID uuid.UUID  `json:"volunteerId"`
	Status      string     `json:"status"`
	Message     string     `json:"message,omitempty"`
	DecidedBy   *uuid.UUID `json:"decidedBy,omitempty"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Populated on reads and after decisions.
	Donation  *DonationSummary `json:"donation,omitempty"`
	Volunteer *UserSummary     `json:"volunteer,omitempty"`
}

// IsPending reports whether the request still awaits a decision.
func (r *Request) IsPending() bool {
	return r.Status == RequestStatusPending
}

// IsDecisionStatus reports whether status is a valid administrator decision.
func IsDecisionStatus(status string) bool {
	return status == RequestStatusAccepted || status == RequestStatusRejected
}
