package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/audit"
	"github.com/harvesthub/harvesthub-engine/pkg/auth"
	"github.com/harvesthub/harvesthub-engine/pkg/geo"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
	"github.com/harvesthub/harvesthub-engine/pkg/repositories"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// RegisterInput carries self-registration fields. Role defaults to donor and
// location to (0, 0).
type RegisterInput struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     string     `json:"role"`
	Phone    string     `json:"phone"`
	Address  string     `json:"address"`
	Location *geo.Point `json:"location"`
}

// Session is a freshly issued token for a user.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// UserService is the identity collaborator: registration, login and lookup.
type UserService interface {
	Register(ctx context.Context, input RegisterInput) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Me(ctx context.Context, caller models.Caller) (*models.User, error)
}

type userService struct {
	userRepo         repositories.UserRepository
	issuer           auth.TokenIssuer
	allowAdminSignup bool
	bcryptCost       int
	compareHash      func(hash, password []byte) error
	unknownUserHash  func() []byte
	auditor          *audit.SecurityAuditor
	logger           *zap.Logger
}

// NewUserService creates a new user service with dependencies.
func NewUserService(userRepo repositories.UserRepository, issuer auth.TokenIssuer, allowAdminSignup bool, logger *zap.Logger) UserService {
	s := &userService{
		userRepo:         userRepo,
		issuer:           issuer,
		allowAdminSignup: allowAdminSignup,
		bcryptCost:       bcrypt.DefaultCost,
		compareHash:      bcrypt.CompareHashAndPassword,
		auditor:          audit.NewSecurityAuditor(logger),
		logger:           logger.Named("users"),
	}
	// Logins for unknown emails compare against this hash so they take as
	// long as a wrong password.
	s.unknownUserHash = sync.OnceValue(func() []byte {
		hash, _ := bcrypt.GenerateFromPassword([]byte("harvesthub-unknown-user"), s.bcryptCost)
		return hash
	})
	return s
}

func (s *userService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	user, err := s.validateRegistration(ctx, input)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", user.Role))

	return s.newSession(user)
}

func (s *userService) validateRegistration(ctx context.Context, input RegisterInput) (*models.User, error) {
	name, err := cleanText(ctx, s.auditor, "name", input.Name, MaxShortTextLength)
	if err != nil {
		return nil, err
	}
	address, err := cleanText(ctx, s.auditor, "address", input.Address, MaxShortTextLength)
	if err != nil {
		return nil, err
	}
	phone, err := cleanText(ctx, s.auditor, "phone", input.Phone, 32)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" || email == "" || input.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", apperrors.ErrValidation)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: invalid email address", apperrors.ErrValidation)
	}
	if len(input.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrValidation, MinPasswordLength)
	}
	// bcrypt only reads the first 72 bytes.
	if len(input.Password) > 72 {
		return nil, fmt.Errorf("%w: password must be at most 72 bytes", apperrors.ErrValidation)
	}

	role := input.Role
	if role == "" {
		role = models.RoleDonor
	}
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", apperrors.ErrValidation, role)
	}
	if role == models.RoleAdmin && !s.allowAdminSignup {
		return nil, fmt.Errorf("%w: administrator accounts cannot self-register", apperrors.ErrForbidden)
	}

	location := geo.NewPoint(0, 0)
	if input.Location != nil {
		if err := input.Location.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		location = *input.Location
	}

	return &models.User{
		Name:     name,
		Email:    email,
		Role:     role,
		Phone:    phone,
		Address:  address,
		Location: location,
	}, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", apperrors.ErrValidation)
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = s.compareHash(s.unknownUserHash(), []byte(password))
			s.auditor.LogLoginFailure(ctx, email)
			return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
		}
		return nil, err
	}

	if err := s.compareHash([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.auditor.LogLoginFailure(ctx, email)
		return nil, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	}

	return s.newSession(user)
}

func (s *userService) Me(ctx context.Context, caller models.Caller) (*models.User, error) {
	return s.userRepo.GetByID(ctx, caller.UserID)
}

func (s *userService) newSession(user *models.User) (*Session, error) {
	token, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

var _ UserService = (*userService)(nil)
