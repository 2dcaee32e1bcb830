//go:build integration

package repositories

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
)

func requestID(r *models.Request) uuid.UUID { return r.ID }

func TestRequestRepository_CreateAndGet(t *testing.T) {
	tc := setupRepoTest(t)
	repo := NewRequestRepository()
	rice := tc.fx.Donations["rice"]
	volunteer := tc.fx.Users["volunteer"]

	req := &models.Request{DonationID: rice.ID, VolunteerID: volunteer.ID, Message: "Can collect at 6pm"}
	require.NoError(t, repo.Create(tc.ctx, req))
	assert.Equal(t, models.RequestStatusPending, req.Status)

	got, err := repo.GetByID(tc.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Can collect at 6pm", got.Message)
	assert.Nil(t, got.DecidedAt)
	require.NotNil(t, got.Donation)
	assert.Equal(t, rice.FoodType, got.Donation.FoodType)
	require.NotNil(t, got.Volunteer)
	assert.Equal(t, volunteer.Name, got.Volunteer.Name)

	_, err = repo.GetByID(tc.ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	missing := &models.Request{DonationID: uuid.New(), VolunteerID: volunteer.ID}
	assert.ErrorIs(t, repo.Create(tc.ctx, missing), apperrors.ErrNotFound)
}

func TestRequestRepository_Lists(t *testing.T) {
	tc := setupRepoTest(t)
	repo := NewRequestRepository()

	r1 := &models.Request{DonationID: tc.fx.Donations["rice"].ID, VolunteerID: tc.fx.Users["volunteer"].ID}
	r2 := &models.Request{DonationID: tc.fx.Donations["rice"].ID, VolunteerID: tc.fx.Users["volunteer2"].ID}
	r3 := &models.Request{DonationID: tc.fx.Donations["bread"].ID, VolunteerID: tc.fx.Users["volunteer"].ID}
	for _, r := range []*models.Request{r1, r2, r3} {
		require.NoError(t, repo.Create(tc.ctx, r))
	}

	all, err := repo.ListAll(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{r3.ID, r2.ID, r1.ID}, uuids(all, requestID))

	forRice, err := repo.ListByDonation(tc.ctx, tc.fx.Donations["rice"].ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{r1.ID, r2.ID}, uuids(forRice, requestID))
}

func TestRequestRepository_DecideOnlyFromPending(t *testing.T) {
	tc := setupRepoTest(t)
	repo := NewRequestRepository()
	admin := tc.fx.Users["admin"]

	req := &models.Request{DonationID: tc.fx.Donations["bread"].ID, VolunteerID: tc.fx.Users["volunteer"].ID}
	require.NoError(t, repo.Create(tc.ctx, req))

	decided, err := repo.Decide(tc.ctx, req.ID, models.RequestStatusRejected, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, decided.Status)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, admin.ID, *decided.DecidedBy)
	assert.NotNil(t, decided.DecidedAt)

	_, err = repo.Decide(tc.ctx, req.ID, models.RequestStatusAccepted, admin.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.ErrorContains(t, err, "already rejected")

	_, err = repo.Decide(tc.ctx, uuid.New(), models.RequestStatusAccepted, admin.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
