package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrValidation     = errors.New("invalid input")
	ErrNoClient       = errors.New("ledger client not configured")
	ErrNoAccount      = errors.New("acting account not configured")
	ErrWrongNetwork   = errors.New("connected to wrong network")
	ErrSequenceActive = errors.New("a sequence is already running")
	ErrLockHeld       = errors.New("lock already held")
)
