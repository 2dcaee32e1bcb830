package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"trims", "  rice and dal  ", "rice and dal", false},
		{"empty passes", "", "", false},
		{"multibyte at limit", strings.Repeat("é", 40), strings.Repeat("é", 40), false},
		{"too long", strings.Repeat("a", 41), "", true},
		{"script tag", "<script>alert(1)</script>", "", true},
		{"nul byte", "rice\x00", "", true},
		{"invalid utf-8", "rice\xff", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanText(context.Background(), nil, "foodType", tt.value, 40)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
