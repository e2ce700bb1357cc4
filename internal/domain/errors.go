package domain

import "errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrScopeMismatch     = errors.New("resource belongs to a different job")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStaleGeneration   = errors.New("resume generation has advanced")
	ErrLeaseHeld         = errors.New("resume is being processed")
	ErrLeaseTimeout      = errors.New("timed out waiting for resume lease")
	ErrWeightsInvalid    = errors.New("invalid scoring weights")
	ErrConcurrentUpdate  = errors.New("record was modified concurrently")
	ErrTokenExpired      = errors.New("access token expired")
	ErrTokenInvalid      = errors.New("access token invalid")
	ErrNotAnalyzed       = errors.New("resume is not analyzed")
)
