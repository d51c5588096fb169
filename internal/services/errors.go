package services

import "errors"

var (
	// ErrInvalidArgument wraps request validation failures
	ErrInvalidArgument = errors.New("invalid argument")

	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotReady   = errors.New("session not ready")
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrStartTimeout      = errors.New("timed out waiting for pairing code or ready event")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrManagerClosed     = errors.New("session manager is shutting down")
)
