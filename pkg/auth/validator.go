package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates JWT token strings.
// This abstraction enables testing with mock implementations.
type TokenValidator interface {
	// ValidateToken validates a JWT token string and returns the claims.
	// Returns an error if the token is invalid, expired, or has an unauthorized issuer.
	ValidateToken(tokenString string) (*Claims, error)
	// Close releases any resources held by the validator.
	Close()
}

// ValidatorConfig contains configuration for the token validator.
type ValidatorConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// Set to false for development mode (parses tokens without verification).
	EnableVerification bool
	// HMACSecret verifies HS256 tokens issued by this server.
	HMACSecret []byte
	// Issuer is the iss claim on tokens signed with HMACSecret.
	Issuer string
	// JWKSEndpoints maps external issuer URLs to their JWKS endpoint URLs.
	// Only RS256 tokens from issuers in this map are accepted.
	JWKSEndpoints map[string]string
}

// Validator verifies locally issued HS256 tokens with the shared secret and
// externally issued RS256 tokens with keys fetched from whitelisted JWKS URLs.
type Validator struct {
	endpoints map[string]keyfunc.Keyfunc
	config    *ValidatorConfig
}

// NewValidator creates a validator with the given configuration.
// If EnableVerification is true, it fetches JWKS from all configured endpoints.
// Returns an error if any JWKS endpoint fails to load.
func NewValidator(ctx context.Context, config *ValidatorConfig) (*Validator, error) {
	v := &Validator{
		endpoints: make(map[string]keyfunc.Keyfunc),
		config:    config,
	}

	if !config.EnableVerification {
		return v, nil
	}

	for issuer, jwksURL := range config.JWKSEndpoints {
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client for %s: %w", issuer, err)
		}
		v.endpoints[issuer] = jwks
	}

	return v, nil
}

// ValidateToken validates a JWT token and returns the claims.
// If verification is disabled, it parses the token without signature validation.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	if !v.config.EnableVerification {
		return v.parseUnverifiedToken(tokenString)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFor,
		jwt.WithValidMethods([]string{"HS256", "RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

func (v *Validator) keyFor(token *jwt.Token) (interface{}, error) {
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.config.HMACSecret) == 0 {
			return nil, errors.New("HMAC tokens are not accepted")
		}
		if claims.Issuer != v.config.Issuer {
			return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
		}
		return v.config.HMACSecret, nil
	case *jwt.SigningMethodRSA:
		jwks, exists := v.endpoints[claims.Issuer]
		if !exists {
			return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
		}
		return jwks.KeyfuncCtx(context.Background())(token)
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

// parseUnverifiedToken parses a JWT without verifying the signature.
// Used in development mode when EnableVerification is false.
func (v *Validator) parseUnverifiedToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

// Close releases any resources held by the validator.
// Currently a no-op as keyfunc v3 doesn't require explicit cleanup.
func (v *Validator) Close() {}

// Ensure Validator implements TokenValidator at compile time.
var _ TokenValidator = (*Validator)(nil)
