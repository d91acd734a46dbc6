package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)

	// Estimation errors
	ErrInsufficientData  = errors.New("insufficient data for analysis")
	ErrPerfectSeparation = errors.New("perfect separation detected")
	ErrNotConverged      = errors.New("estimator did not converge")
	ErrSingularHessian   = errors.New("information matrix is singular")
	ErrMethodUnavailable = errors.New("estimation method unavailable")
	ErrNotImplemented    = errors.New("not implemented")
)

// NewNotFoundError wraps ErrNotFound with the resource and id.
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// IsNotFoundError reports whether err is a not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsEstimationError reports whether err came from a failed fit.
func IsEstimationError(err error) bool {
	return errors.Is(err, ErrPerfectSeparation) ||
		errors.Is(err, ErrNotConverged) ||
		errors.Is(err, ErrSingularHessian) ||
		errors.Is(err, ErrInsufficientData)
}
