package testhelpers

import (
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/harvesthub/harvesthub-engine/pkg/geo"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
)

//go:embed testdata/*.yaml
var fixtureFS embed.FS

// Fixtures is a small, named dataset of users and donations for tests.
type Fixtures struct {
	Users     map[string]*models.User
	Donations map[string]*models.Donation
}

type fixtureFile struct {
	Users []struct {
		Key   string     `yaml:"key"`
		ID    string     `yaml:"id"`
		Name  string     `yaml:"name"`
		Email string     `yaml:"email"`
		Role  string     `yaml:"role"`
		At    [2]float64 `yaml:"at"`
	} `yaml:"users"`
	Donations []struct {
		Key           string     `yaml:"key"`
		ID            string     `yaml:"id"`
		Donor         string     `yaml:"donor"`
		FoodType      string     `yaml:"food_type"`
		Quantity      int        `yaml:"quantity"`
		PreparedAgo   string     `yaml:"prepared_ago"`
		ExpiresIn     string     `yaml:"expires_in"`
		Address       string     `yaml:"address"`
		At            [2]float64 `yaml:"at"`
		Status        string     `yaml:"status"`
		VolunteerUser string     `yaml:"volunteer"`
	} `yaml:"donations"`
}

// LoadFixtures parses testdata/<name>.yaml. Times are relative to now so
// fixtures never expire.
func LoadFixtures(name string) (*Fixtures, error) {
	data, err := fixtureFS.ReadFile("testdata/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", name, err)
	}

	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", name, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	fx := &Fixtures{
		Users:     make(map[string]*models.User, len(file.Users)),
		Donations: make(map[string]*models.Donation, len(file.Donations)),
	}

	for _, u := range file.Users {
		id, err := uuid.Parse(u.ID)
		if err != nil {
			return nil, fmt.Errorf("fixture user %s: %w", u.Key, err)
		}
		fx.Users[u.Key] = &models.User{
			ID:       id,
			Name:     u.Name,
			Email:    u.Email,
			Role:     u.Role,
			Location: geo.NewPoint(u.At[0], u.At[1]),
		}
	}

	for _, d := range file.Donations {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, fmt.Errorf("fixture donation %s: %w", d.Key, err)
		}
		donor, ok := fx.Users[d.Donor]
		if !ok {
			return nil, fmt.Errorf("fixture donation %s: unknown donor %q", d.Key, d.Donor)
		}
		preparedAgo, err := time.ParseDuration(d.PreparedAgo)
		if err != nil {
			return nil, fmt.Errorf("fixture donation %s: %w", d.Key, err)
		}
		expiresIn, err := time.ParseDuration(d.ExpiresIn)
		if err != nil {
			return nil, fmt.Errorf("fixture donation %s: %w", d.Key, err)
		}

		donation := &models.Donation{
			ID:              id,
			DonorID:         donor.ID,
			FoodType:        d.FoodType,
			Quantity:        d.Quantity,
			PreparationTime: now.Add(-preparedAgo),
			ExpiryDate:      now.Add(expiresIn),
			Address:         d.Address,
			Location:        geo.NewPoint(d.At[0], d.At[1]),
			Status:          models.DonationStatusAvailable,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if d.Status != "" {
			donation.Status = d.Status
		}
		if d.VolunteerUser != "" {
			volunteer, ok := fx.Users[d.VolunteerUser]
			if !ok {
				return nil, fmt.Errorf("fixture donation %s: unknown volunteer %q", d.Key, d.VolunteerUser)
			}
			donation.VolunteerID = &volunteer.ID
		}
		fx.Donations[d.Key] = donation
	}

	return fx, nil
}
