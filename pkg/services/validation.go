package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/harvesthub/harvesthub-engine/pkg/apperrors"
	"github.com/harvesthub/harvesthub-engine/pkg/audit"
	"github.com/harvesthub/harvesthub-engine/pkg/models"
)

// Limits on free text that is stored and broadcast to every client.
const (
	MaxShortTextLength = 200
	MaxMessageLength   = 1000
)

// cleanText trims value and rejects it if it is too long or carries a
// script-injection payload. Empty values pass; callers check required fields.
// Rejected payloads are reported to auditor.
func cleanText(ctx context.Context, auditor *audit.SecurityAuditor, field, value string, maxLen int) (string, error) {
	// PostgreSQL TEXT rejects NUL and invalid UTF-8.
	if !utf8.ValidString(value) || strings.ContainsRune(value, 0) {
		return "", fmt.Errorf("%w: %s must be valid UTF-8 text without NUL characters", apperrors.ErrValidation, field)
	}
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > maxLen {
		return "", fmt.Errorf("%w: %s must be at most %d characters", apperrors.ErrValidation, field, maxLen)
	}
	if value != "" && libinjection.IsXSS(value) {
		auditor.LogMarkupRejected(ctx, field)
		return "", fmt.Errorf("%w: %s contains markup that is not allowed", apperrors.ErrValidation, field)
	}
	return value, nil
}

func requireRole(caller models.Caller, action string, roles ...string) error {
	if !caller.Is(roles...) {
		return fmt.Errorf("%w: %s cannot %s", apperrors.ErrForbidden, caller.Role, action)
	}
	return nil
}
