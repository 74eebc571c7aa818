package domain

import "errors"

// Sentinel errors forming the mutation error taxonomy. Services wrap these
// with fmt.Errorf("%w: ...") so transport can branch with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("state conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrForbidden   = errors.New("authorization denied")
)
