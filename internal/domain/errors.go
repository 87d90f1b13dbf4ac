package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTicker      = errors.New("invalid ticker")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrEmptyCompletion    = errors.New("empty completion")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrScanInProgress     = errors.New("scan already in progress")
	ErrUnavailable        = errors.New("backend not configured")
)
