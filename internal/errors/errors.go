// Package errors defines the structured error types used across the Singlet
// runtime.
//
// Every failure class the runtime can produce maps to an ErrorType so that
// callers can branch on category rather than message text. Errors in the
// registration and render paths are caught and logged at their boundary,
// never propagated out of the render loop or a registration batch.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of runtime errors.
type ErrorType string

const (
	// ErrorTypeRegistration covers failures that abort a single component
	// registration: the primary template fetch failed or the source held no
	// usable template segment.
	ErrorTypeRegistration ErrorType = "registration"
	// ErrorTypeScript covers inline or module script bodies that threw
	// during execution.
	ErrorTypeScript ErrorType = "script"
	// ErrorTypeResource covers external script or stylesheet fetches that
	// failed; the resource is treated as empty.
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeBinding covers conditional or event expressions that threw
	// during evaluation; the evaluation result is treated as false/no-op.
	ErrorTypeBinding ErrorType = "binding"
	// ErrorTypeAttribute covers attribute values that looked like JSON but
	// failed to parse; the raw string is used instead.
	ErrorTypeAttribute ErrorType = "attribute"
	// ErrorTypeInternal covers programming errors inside the runtime.
	ErrorTypeInternal ErrorType = "internal"
)

// SingletError is a structured error with component and source context.
type SingletError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Component   string
	SourcePath  string
	Detail      string // offending source text, attached for diagnosis
	Recoverable bool
}

// Error implements the error interface.
func (e *SingletError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}
	if e.SourcePath != "" {
		parts = append(parts, e.SourcePath)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *SingletError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *SingletError) Is(target error) bool {
	var t *SingletError
	if errors.As(target, &t) {
		return e.Type == t.Type && (t.Code == "" || e.Code == t.Code)
	}
	return false
}

// WithComponent attaches the component tag name.
func (e *SingletError) WithComponent(name string) *SingletError {
	e.Component = name
	return e
}

// WithSource attaches the component source path.
func (e *SingletError) WithSource(path string) *SingletError {
	e.SourcePath = path
	return e
}

// WithDetail attaches offending source text for diagnosis.
func (e *SingletError) WithDetail(detail string) *SingletError {
	e.Detail = detail
	return e
}

// NewRegistrationError creates a terminal registration error.
func NewRegistrationError(code, message string, cause error) *SingletError {
	return &SingletError{
		Type:        ErrorTypeRegistration,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewScriptError creates a script execution error.
func NewScriptError(message string, cause error) *SingletError {
	return &SingletError{
		Type:        ErrorTypeScript,
		Code:        "script_exec",
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewResourceError creates an external resource load error.
func NewResourceError(url string, cause error) *SingletError {
	return &SingletError{
		Type:        ErrorTypeResource,
		Code:        "resource_load",
		Message:     fmt.Sprintf("failed to load resource %q", url),
		Cause:       cause,
		Recoverable: true,
	}
}

// NewBindingError creates a binding evaluation error.
func NewBindingError(expression string, cause error) *SingletError {
	return &SingletError{
		Type:        ErrorTypeBinding,
		Code:        "binding_eval",
		Message:     fmt.Sprintf("failed to evaluate %q", expression),
		Cause:       cause,
		Detail:      expression,
		Recoverable: true,
	}
}

// NewAttributeError creates an attribute parse error.
func NewAttributeError(name, raw string, cause error) *SingletError {
	return &SingletError{
		Type:        ErrorTypeAttribute,
		Code:        "attr_parse",
		Message:     fmt.Sprintf("attribute %q is not valid JSON, using raw string", name),
		Cause:       cause,
		Detail:      raw,
		Recoverable: true,
	}
}

// NewInternalError creates an internal runtime error.
func NewInternalError(message string, cause error) *SingletError {
	return &SingletError{
		Type:        ErrorTypeInternal,
		Code:        "internal",
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable reports whether err is a recoverable SingletError. Unknown
// error values are treated as non-recoverable.
func IsRecoverable(err error) bool {
	var se *SingletError
	if errors.As(err, &se) {
		return se.Recoverable
	}
	return false
}
