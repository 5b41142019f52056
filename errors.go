package leadbus

import (
	"errors"
	"fmt"
)

// Error represents a leadbus error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for leadbus operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodePublish indicates the event could not be published at all,
	// for example because the broker mirror rejected it.
	ErrCodePublish = "PUBLISH_ERROR"

	// ErrCodeHandlerFailure indicates a handler returned an error or panicked.
	ErrCodeHandlerFailure = "HANDLER_FAILURE"

	// ErrCodeDeadLettered indicates retries were exhausted and the event was
	// stored in the dead letter queue.
	ErrCodeDeadLettered = "DEAD_LETTERED"

	// ErrCodeDropped indicates retries were exhausted and the event was lost
	// because no dead letter queue could take it.
	ErrCodeDropped = "MESSAGE_DROPPED"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrInvalidConfiguration is returned when a component is misconfigured.
	ErrInvalidConfiguration = &Error{
		Code:    ErrCodeConfiguration,
		Message: "invalid configuration",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// Is lets errors.Is match a coded error against the sentinel for its code,
// so every configuration failure satisfies
// errors.Is(err, ErrInvalidConfiguration).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || (t != ErrNoData && t != ErrInvalidConfiguration) {
		return false
	}
	return e.Code == t.Code
}

// hasCode reports whether any *Error in err's tree carries code.
// errors.As alone stops at the first *Error, which is not enough for
// aggregates built with errors.Join.
func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) && e.Code == code {
		return true
	}

	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if hasCode(inner, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return hasCode(x.Unwrap(), code)
	}
	return false
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return hasCode(err, ErrCodeNoData) || errors.Is(err, ErrNoData)
}

// IsConfiguration reports whether err is ErrInvalidConfiguration or another
// CONFIGURATION_ERROR, such as a failed option.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsValidation reports whether err carries a validation failure.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsDeadLettered reports whether err (or any error joined into it) records
// an event that was preserved in a dead letter queue.
func IsDeadLettered(err error) bool {
	return hasCode(err, ErrCodeDeadLettered)
}

// IsDropped reports whether err (or any error joined into it) records an
// event that was lost after exhausting its retries.
func IsDropped(err error) bool {
	return hasCode(err, ErrCodeDropped)
}

// IsPublishFailure reports whether err records a failure to publish the
// event at all, as opposed to a failure while handling it.
func IsPublishFailure(err error) bool {
	return hasCode(err, ErrCodePublish)
}
