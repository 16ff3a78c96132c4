package shared

import (
	"errors"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage converts an error into text that can be shown on a page.
// Only the error class is revealed, never the underlying message.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, httpx.ErrNotFound), errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, httpx.ErrDuplicate):
		return "A record with the same value already exists."
	case errors.Is(err, httpx.ErrValidation):
		return "Some fields are invalid. Please review the form."
	case errors.Is(err, httpx.ErrForbidden):
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	default:
		return "Something went wrong. Please try again."
	}
}
