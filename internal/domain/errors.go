package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
	ErrMalformedRecord   = errors.New("malformed market record")
	ErrOracleUnavailable = errors.New("similarity oracle unavailable")
)
