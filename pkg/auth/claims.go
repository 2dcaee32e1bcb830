// Package auth provides JWT-based authentication for harvesthub-engine.
// Tokens are issued by this server (HS256) or by an external identity
// provider whose keys are published at a JWKS endpoint (RS256).
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims represents the JWT claims structure.
// Subject carries the user UUID.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// WithClaims stores claims and the raw token in ctx.
func WithClaims(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return context.WithValue(ctx, TokenKey, token)
}

// Caller converts validated claims into the identity used by services.
func (c *Claims) Caller() (models.Caller, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Caller{}, fmt.Errorf("%w: invalid subject in token", apperrors.ErrUnauthorized)
	}
	if !models.IsValidRole(c.Role) {
		return models.Caller{}, fmt.Errorf("%w: invalid role in token", apperrors.ErrUnauthorized)
	}
	return models.Caller{UserID: userID, Role: c.Role}, nil
}

// CallerFromContext extracts the authenticated caller from the request context.
func CallerFromContext(ctx context.Context) (models.Caller, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return models.Caller{}, fmt.Errorf("%w: authentication required", apperrors.ErrUnauthorized)
	}
	return claims.Caller()
}
