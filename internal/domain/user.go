package domain

import (
	"strings"

	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

// UserID is a value object for user identity (auth provider UID).
type UserID string

// ParseUserID trims s and rejects empty or path-like ids.
func ParseUserID(s string) (UserID, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "/") {
		return "", domerrors.ErrInvalidUserID
	}
	return UserID(s), nil
}

// String returns the raw id.
func (u UserID) String() string { return string(u) }

// Placeholder values written over PII during anonymization.
const (
	DeletedUserName = "Deleted User"
	Blank           = ""
)
