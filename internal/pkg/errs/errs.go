/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and carries the wire-level errortype token alongside an internal numeric code and a
human-readable message, for unified error reporting to both logs and peers.
*/
package errs

import (
	"fmt"
	"strings"

	"conchat/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
// It wraps the Go error interface, adding a business code and the wire-level
// errortype token sent back to the originating connection.
type CustomError struct {
	// Code is the internal business error code (see constants definition).
	Code int

	// Type is the errortype token sent verbatim in the error{} frame.
	Type string

	// Message is the user-friendly error description.
	Message string
}

// Error implements the standard Go error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("%s (code %d): %s", e.Type, e.Code, e.Message)
}

// NewError constructs and returns a new *CustomError instance based on a predefined error code.
// The optional details parameter allows for formatting arguments (printf-style) to be supplied
// for the error message. If an unknown code is provided, it logs the request and returns the
// ErrServerError error instead.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrServerError]
		return &CustomError{
			Code:    unknownErr.Code,
			Type:    unknownErr.Type,
			Message: unknownErr.Message,
		}
	}

	customErr := templateErr

	if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
			)
		}
	}

	return &customErr
}
