package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingStyleID is returned by New when Options.StyleID is empty.
	ErrMissingStyleID = errors.New("styleId is required")
	// ErrNotReady is returned by tile operations before the provider is ready.
	ErrNotReady = errors.New("provider is not ready")
	// ErrLevelOutOfRange is returned for levels outside [MinimumLevel, MaximumLevel].
	ErrLevelOutOfRange = errors.New("level is outside the provider's level range")
	// ErrReleased marks a request that lost its last reference before a retry could be issued.
	ErrReleased = errors.New("tile request released")
)

// ConfigError reports an invalid option detected at construction.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid option %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CredentialResolutionError is the cause a readiness gate is rejected with.
type CredentialResolutionError struct {
	Err error
}

func (e *CredentialResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve access token: %v", e.Err)
}

func (e *CredentialResolutionError) Unwrap() error {
	return e.Err
}

// TransportFailure is the per-attempt failure carried by a RetryDecision.
type TransportFailure struct {
	URL     string
	Attempt int
	Err     error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("attempt %d for %s failed: %v", e.Attempt, e.URL, e.Err)
}

func (e *TransportFailure) Unwrap() error {
	return e.Err
}

// RequestFailedError is the terminal error of a tile request nobody chose to retry.
type RequestFailedError struct {
	Level, X, Y int
	Attempts    int
	Err         error
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("tile %d/%d/%d failed after %d attempt(s): %v", e.Level, e.X, e.Y, e.Attempts, e.Err)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}
