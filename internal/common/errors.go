// Package common defines shared constants and sentinel errors used across
// the sync core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Sync flow control.
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrOffline         = errors.New("network unreachable")
	ErrVersionConflict = errors.New("version conflict")

	// Identity errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)
