package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
)

func TestClaims_Caller(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		claims  Claims
		wantErr bool
	}{
		{"valid donor", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()}, Role: models.RoleDonor}, false},
		{"subject not a uuid", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "central"}, Role: models.RoleAdmin}, true},
		{"unknown role", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()}, Role: "superuser"}, true},
		{"missing role", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller, err := tt.claims.Caller()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, caller.UserID)
			assert.Equal(t, tt.claims.Role, caller.Role)
		})
	}
}

func TestCallerFromContext(t *testing.T) {
	_, err := CallerFromContext(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	id := uuid.New()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()}, Role: models.RoleVolunteer}
	ctx := WithClaims(context.Background(), claims, "raw")

	caller, err := CallerFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Caller{UserID: id, Role: models.RoleVolunteer}, caller)

	token, ok := GetToken(ctx)
	assert.True(t, ok)
	assert.Equal(t, "raw", token)
}
