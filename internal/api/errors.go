package api

import (
	"fmt"

	"github.com/fromzero/socialbook/internal/api/params"
	"github.com/fromzero/socialbook/internal/api/social"
	"github.com/fromzero/socialbook/internal/feed"
	"github.com/fromzero/socialbook/internal/models"
	"github.com/fromzero/socialbook/internal/relationship"
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

var errorCodes = []struct {
	target  error
	code    int
	message string
}{
	{params.ErrInvalid, ErrInvalidParams, "Invalid params"},
	{feed.ErrInvalid, ErrInvalidParams, "Invalid params"},
	{social.ErrNotFound, ErrNotFound, "Not found"},
	{relationship.ErrNotFound, ErrNotFound, "Not found"},
	{feed.ErrNotFound, ErrNotFound, "Not found"},
	{feed.ErrForbidden, ErrForbidden, "Forbidden"},
	{models.ErrDuplicate, ErrConflict, "Conflict"},
}
