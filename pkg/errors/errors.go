// Package errors provides structured error handling for quickload.
//
// Every failure that crosses a package boundary carries an ErrorType so that
// callers can tell plugin-origin failures from core-origin ones, and so that
// the preview executor can decide which producer failures are expected noise
// after an early stop.
//
//	err := errors.New(errors.ErrorTypeConfig, "missing required key").
//	    WithDetail("key", "in.type")
//
//	if errors.IsEmptyInput(err) {
//	    // nothing to preview
//	}
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents resource not found errors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents data processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeQuery represents query execution errors
	ErrorTypeQuery ErrorType = "query"

	// ErrorTypeFieldDecode marks a single column value that could not be
	// converted to its declared type.
	ErrorTypeFieldDecode ErrorType = "field_decode"
	// ErrorTypeEmptyInput marks a sampling consumer that reached the end of
	// input without reading a single record.
	ErrorTypeEmptyInput ErrorType = "empty_input"
	// ErrorTypeChannelProtocol marks a completion signal or page transfer
	// observed out of the expected order.
	ErrorTypeChannelProtocol ErrorType = "channel_protocol"
	// ErrorTypeChannelClosed is returned to a producer whose consumer has
	// already completed. It is the expected failure after an early stop.
	ErrorTypeChannelClosed ErrorType = "channel_closed"
	// ErrorTypePluginExecution wraps any failure raised inside plugin code.
	ErrorTypePluginExecution ErrorType = "plugin_execution"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value previously attached with WithDetail.
func (e *Error) Detail(key string) (interface{}, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if stderrors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether any error in err's chain is an *Error of the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// Find returns the first *Error of the given type in err's chain.
func Find(err error, errType ErrorType) (*Error, bool) {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return nil, false
		}
		if e.Type == errType {
			return e, true
		}
		err = e.Cause
	}
	return nil, false
}

// TypeOf returns the type of the outermost *Error in err's chain, or
// ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

func IsFieldDecode(err error) bool { return IsType(err, ErrorTypeFieldDecode) }
func IsEmptyInput(err error) bool { return IsType(err, ErrorTypeEmptyInput) }
func IsChannelProtocol(err error) bool { return IsType(err, ErrorTypeChannelProtocol) }
func IsChannelClosed(err error) bool { return IsType(err, ErrorTypeChannelClosed) }
func IsPluginExecution(err error) bool { return IsType(err, ErrorTypePluginExecution) }

// Is and As re-export the standard library helpers so callers need a single
// errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
