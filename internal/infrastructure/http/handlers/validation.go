package handlers

import (
	"fmt"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

// Validation limits.
const (
	MaxUserIDLength = 128
	MaxRunsListed   = 500
)

// SanitizeUserID parses a path user id; over-long ids are rejected.
func SanitizeUserID(raw string) (domain.UserID, error) {
	if len(raw) > MaxUserIDLength {
		return "", fmt.Errorf("%w: longer than %d", domerrors.ErrInvalidUserID, MaxUserIDLength)
	}
	return domain.ParseUserID(raw)
}
