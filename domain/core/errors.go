package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrRunNotFound      = fmt.Errorf("%w: run", ErrNotFound)
	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)
	ErrColumnNotFound   = fmt.Errorf("%w: column", ErrNotFound)

	// Statistical recovery errors - recovered locally with a documented
	// fallback and recorded in the output report
	ErrInsufficientData  = errors.New("insufficient data for statistical test")
	ErrDegenerateFeature = errors.New("degenerate feature")
	ErrModelFitFailure   = errors.New("model failed to fit")

	// Surfaced failures - never recovered silently
	ErrInfeasiblePartition = errors.New("no feasible partition")
	ErrUnhandledMechanism  = errors.New("unhandled missingness mechanism")

	// Determinism errors
	ErrSeedMismatch = errors.New("seed mismatch")
	ErrHashMismatch = errors.New("fingerprint mismatch")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewDegenerateFeatureError(column string, reason string) error {
	return fmt.Errorf("%w: column %s: %s", ErrDegenerateFeature, column, reason)
}

func NewInsufficientDataError(column string, observed, required int) error {
	return fmt.Errorf("%w: column %s has %d observed values, need %d",
		ErrInsufficientData, column, observed, required)
}

func NewModelFitError(column string, err error) error {
	return fmt.Errorf("%w for column %s: %v", ErrModelFitFailure, column, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrDegenerateFeature) ||
		errors.Is(err, ErrModelFitFailure)
}

func IsDeterminismError(err error) bool {
	return errors.Is(err, ErrSeedMismatch) ||
		errors.Is(err, ErrHashMismatch)
}
