package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/harvesthub/harvesthub-engine/pkg/geo"
)

// User is a registered platform member.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // 'donor', 'volunteer', 'admin'
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	Location     geo.Point `json:"location"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserSummary is the subset of a user embedded in donation and request views.
type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
}

// Role constants. A user's role never changes after registration.
const (
	RoleDonor     = "donor"
	RoleVolunteer = "volunteer"
	RoleAdmin     = "admin"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleDonor, RoleVolunteer, RoleAdmin}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Caller identifies who is invoking a core operation. It is supplied by the
// identity layer and trusted as-is.
type Caller struct {
	UserID uuid.UUID
	Role   string
}

// Is reports whether the caller holds any of the given roles.
func (c Caller) Is(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}
