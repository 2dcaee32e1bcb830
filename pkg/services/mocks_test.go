package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/geo"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
	"github.com/harvesthub/harvesthub-engine/pkg/testhelpers"
)

// memStore is an in-memory stand-in for the three tables. Its TxRunner
// restores a snapshot when fn fails, so rollback behaviour can be asserted
// without a database.
type memStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]models.User
	donations map[uuid.UUID]models.Donation
	requests  map[uuid.UUID]models.Request

	txCount   int
	boundsErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[uuid.UUID]models.User),
		donations: make(map[uuid.UUID]models.Donation),
		requests:  make(map[uuid.UUID]models.Request),
	}
}

// newFixtureStore loads the city fixture set.
func newFixtureStore(t *testing.T) (*memStore, *testhelpers.Fixtures) {
	t.Helper()
	fx, err := testhelpers.LoadFixtures("city")
	require.NoError(t, err)

	s := newMemStore()
	for _, u := range fx.Users {
		s.users[u.ID] = *u
	}
	for _, d := range fx.Donations {
		s.donations[d.ID] = *d
	}
	return s, fx
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.txCount++
	users := maps.Clone(s.users)
	donations := maps.Clone(s.donations)
	requests := maps.Clone(s.requests)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.users, s.donations, s.requests = users, donations, requests
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) donation(id uuid.UUID) models.Donation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.donations[id]
}

func (s *memStore) request(id uuid.UUID) models.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

// addRequest stores a pending request and returns its id.
func (s *memStore) addRequest(donationID, volunteerID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	r := models.Request{
		ID:          uuid.New(),
		DonationID:  donationID,
		VolunteerID: volunteerID,
		Status:      models.RequestStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.requests[r.ID] = r
	return r.ID
}

func (s *memStore) summary(userID uuid.UUID) *models.UserSummary {
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	return &models.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("%w: email already registered", apperrors.ErrConflict)
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = *user
	return nil
}

func (r memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", apperrors.ErrNotFound, id)
	}
	return &u, nil
}

func (r memUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", apperrors.ErrNotFound, email)
}

type memDonationRepo struct{ s *memStore }

func (r memDonationRepo) Create(_ context.Context, d *models.Donation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.ID = uuid.New()
	d.Status = models.DonationStatusAvailable
	d.VolunteerID = nil
	d.Version = 1
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	r.s.donations[d.ID] = *d
	return nil
}

func (r memDonationRepo) get(id uuid.UUID) (*models.Donation, error) {
	d, ok := r.s.donations[id]
	if !ok {
		return nil, fmt.Errorf("%w: donation %s", apperrors.ErrNotFound, id)
	}
	d.Donor = r.s.summary(d.DonorID)
	return &d, nil
}

func (r memDonationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Donation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

func (r memDonationRepo) GetByIDForShare(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	return r.GetByID(ctx, id)
}

func (r memDonationRepo) filter(keep func(models.Donation) bool) []*models.Donation {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Donation
	for _, d := range r.s.donations {
		if keep(d) {
			d.Donor = r.s.summary(d.DonorID)
			out = append(out, &d)
		}
	}
	slices.SortFunc(out, func(a, b *models.Donation) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func (r memDonationRepo) ListByDonor(_ context.Context, donorID uuid.UUID) ([]*models.Donation, error) {
	return r.filter(func(d models.Donation) bool { return d.DonorID == donorID }), nil
}

func (r memDonationRepo) ListByStatus(_ context.Context, status string) ([]*models.Donation, error) {
	return r.filter(func(d models.Donation) bool { return d.Status == status }), nil
}

func (r memDonationRepo) ListWithinBounds(_ context.Context, status string, box geo.Box) ([]*models.Donation, error) {
	if r.s.boundsErr != nil {
		return nil, r.s.boundsErr
	}
	return r.filter(func(d models.Donation) bool { return d.Status == status && box.Contains(d.Location) }), nil
}

func (r memDonationRepo) transition(id uuid.UUID, from, to string, volunteerID *uuid.UUID) (*models.Donation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.donations[id]
	if !ok {
		return nil, fmt.Errorf("%w: donation %s", apperrors.ErrNotFound, id)
	}
	if d.Status != from {
		return nil, fmt.Errorf("%w: donation is %s", apperrors.ErrConflict, d.Status)
	}
	d.Status = to
	if volunteerID != nil {
		d.VolunteerID = volunteerID
	}
	d.Version++
	d.UpdatedAt = time.Now()
	r.s.donations[id] = d
	return r.get(id)
}

func (r memDonationRepo) MarkClaimed(_ context.Context, id, volunteerID uuid.UUID) (*models.Donation, error) {
	return r.transition(id, models.DonationStatusAvailable, models.DonationStatusClaimed, &volunteerID)
}

func (r memDonationRepo) MarkDelivered(_ context.Context, id uuid.UUID) (*models.Donation, error) {
	return r.transition(id, models.DonationStatusClaimed, models.DonationStatusDelivered, nil)
}

type memRequestRepo struct{ s *memStore }

func (r memRequestRepo) Create(_ context.Context, req *models.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.donations[req.DonationID]; !ok {
		return fmt.Errorf("%w: donation %s", apperrors.ErrNotFound, req.DonationID)
	}
	req.ID = uuid.New()
	req.Status = models.RequestStatusPending
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	r.s.requests[req.ID] = *req
	return nil
}

func (r memRequestRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %s", apperrors.ErrNotFound, id)
	}
	r.withSummaries(&req)
	return &req, nil
}

// withSummaries fills the donation and volunteer summaries. Callers hold mu.
func (r memRequestRepo) withSummaries(req *models.Request) {
	if d, ok := r.s.donations[req.DonationID]; ok {
		req.Donation = &models.DonationSummary{ID: d.ID, FoodType: d.FoodType, Quantity: d.Quantity, Status: d.Status}
	}
	req.Volunteer = r.s.summary(req.VolunteerID)
}

func (r memRequestRepo) list(keep func(models.Request) bool) []*models.Request {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Request
	for _, req := range r.s.requests {
		if keep(req) {
			r.withSummaries(&req)
			out = append(out, &req)
		}
	}
	slices.SortFunc(out, func(a, b *models.Request) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func (r memRequestRepo) ListAll(_ context.Context) ([]*models.Request, error) {
	return r.list(func(models.Request) bool { return true }), nil
}

func (r memRequestRepo) ListByDonation(_ context.Context, donationID uuid.UUID) ([]*models.Request, error) {
	return r.list(func(req models.Request) bool { return req.DonationID == donationID }), nil
}

func (r memRequestRepo) Decide(_ context.Context, id uuid.UUID, status string, decidedBy uuid.UUID) (*models.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %s", apperrors.ErrNotFound, id)
	}
	if !req.IsPending() {
		return nil, fmt.Errorf("%w: request already %s", apperrors.ErrConflict, req.Status)
	}
	now := time.Now()
	req.Status = status
	req.DecidedBy = &decidedBy
	req.DecidedAt = &now
	req.UpdatedAt = now
	r.s.requests[id] = req
	return &req, nil
}

// recordingPublisher captures published event names in order.
type recordingPublisher struct {
	mu       sync.Mutex
	events   []string
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, name string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
	p.payloads = append(p.payloads, payload)
	return p.err
}

// payload returns the most recent payload published under name.
func (p *recordingPublisher) payload(name string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i] == name {
			return p.payloads[i]
		}
	}
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

func callerFor(u *models.User) models.Caller {
	return models.Caller{UserID: u.ID, Role: u.Role}
}
