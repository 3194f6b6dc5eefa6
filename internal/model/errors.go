package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the consumption pipeline.
var (
	// ErrMalformedRequest: bad payload or missing required shape. Dropped.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrUnknownType: declared type is not a known variant. Dropped.
	ErrUnknownType = fmt.Errorf("unknown message type: %w", ErrMalformedRequest)
	// ErrExecutionFailure: executor failed. Left unacknowledged for redelivery.
	ErrExecutionFailure = errors.New("execution failure")
	// ErrPublishFailure: response could not be published. Still acknowledged.
	ErrPublishFailure = errors.New("publish failure")
	// ErrCapacityExhausted: data directory headroom below threshold. Fatal.
	ErrCapacityExhausted = errors.New("capacity exhausted")
	// ErrLivenessWrite: liveness record could not be written. Swallowed.
	ErrLivenessWrite = errors.New("liveness write failure")
)
