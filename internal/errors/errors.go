package errors

import (
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeDatabaseError       = "DATABASE_ERROR"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeInsufficientData    = "INSUFFICIENT_DATA"
	CodeDegenerateFeature   = "DEGENERATE_FEATURE"
	CodeModelFitFailure     = "MODEL_FIT_FAILURE"
	CodeInfeasiblePartition = "INFEASIBLE_PARTITION"
	CodeUnhandledMechanism  = "UNHANDLED_MECHANISM"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InsufficientData(message string) *AppError {
	return New(CodeInsufficientData, message)
}

func DegenerateFeature(column string) *AppError {
	return New(CodeDegenerateFeature, fmt.Sprintf("column %s is degenerate", column))
}

func ModelFitFailure(column string, cause error) *AppError {
	return &AppError{
		Code:    CodeModelFitFailure,
		Message: fmt.Sprintf("predictive model failed for column %s", column),
		Cause:   cause,
	}
}

func InfeasiblePartition(message string) *AppError {
	return New(CodeInfeasiblePartition, message)
}

func UnhandledMechanism(column string) *AppError {
	return New(CodeUnhandledMechanism, fmt.Sprintf("column %s left unimputed (MNAR)", column))
}
