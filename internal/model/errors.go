package model

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a conditional update lost a race or the entity
	// is not in the expected state.
	ErrConflict = errors.New("conditional update conflict")
	// ErrQuotaExceeded indicates the per-user active session cap was hit.
	ErrQuotaExceeded = errors.New("active session quota exceeded")
	// ErrCodeTaken indicates a session code collision among active sessions.
	ErrCodeTaken = errors.New("session code already taken")
)
