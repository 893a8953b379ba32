package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Usage errors: missing required input, rejected before any
	// collaborator call
	ErrMissingUser    = errors.New("user ID is required")
	ErrMissingMessage = errors.New("message is required")
	ErrMissingQuery   = errors.New("query is required")
	ErrInvalidLimit   = errors.New("limit must be positive")
)

// Context keys for error values
const (
	UserIDKey = "user_id"
	QueryKey  = "query"
)
