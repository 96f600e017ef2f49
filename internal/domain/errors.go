package domain

import "errors"

// Sentinel error kinds. Services wrap them with context, e.g.
// fmt.Errorf("%w: event is not published", ErrConflict), and callers test with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
