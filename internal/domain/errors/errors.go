package errors

import "errors"

// Sentinel errors for adapters to translate into and handlers to map to HTTP status.
var (
	ErrInvalidUserID    = errors.New("user id is required")
	ErrUserNotFound     = errors.New("user not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrBlobNotFound     = errors.New("blob not found")
	ErrInvalidBlobRef   = errors.New("invalid blob reference")
	ErrBatchTooLarge    = errors.New("batch exceeds write capacity")
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrRunNotFound      = errors.New("erasure run not found")
)
