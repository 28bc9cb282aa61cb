package core

import "errors"

var (
	ErrMissingUsername   = errors.New("username required")
	ErrMissingFields     = errors.New("userId and signature required")
	ErrInvalidUserID     = errors.New("invalid userId")
	ErrChallengeNotFound = errors.New("no challenge")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrNotAuthorized     = errors.New("not an authorized key")
	ErrOracleUnavailable = errors.New("registry unavailable")
	ErrEventsUnavailable = errors.New("failed to fetch events")
	ErrTokenExpired      = errors.New("token has expired")
	ErrInvalidToken      = errors.New("invalid token")
)
