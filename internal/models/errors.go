package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrResolutionConflict ErrorType = iota
	ErrInstallFailure
	ErrNotFound
	ErrDownload
	ErrIntegrity
	ErrInvalidConfig
	ErrIndexParse
	ErrSigning
	ErrFileOp
)

// Error codes reported in ErrorRecord.Code
const (
	CodeInvalidConstraint    = 1001
	CodeSystemRequirement    = 1002
	CodeConstraintMismatch   = 1003
	CodeMissingDependency    = 1004
	CodeNoSatisfyingVersion  = 1005
	CodeConflictingExtension = 1006
	CodeDownloadFailed       = 1101
	CodeChecksumMismatch     = 1102
	CodeExtractFailed        = 1103
	CodeStateFailed          = 1104
	CodeLockFailed           = 1105
	CodeNotFound             = 1201
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrResolutionConflict:
		return "ResolutionConflict"
	case ErrInstallFailure:
		return "InstallFailure"
	case ErrNotFound:
		return "NotFound"
	case ErrDownload:
		return "Download"
	case ErrIntegrity:
		return "Integrity"
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrIndexParse:
		return "IndexParse"
	case ErrSigning:
		return "Signing"
	case ErrFileOp:
		return "FileOp"
	default:
		return "Unknown"
	}
}

// ExtMgrError represents an error raised while managing extensions
type ExtMgrError struct {
	Type    ErrorType
	Package string
	Code    int
	Err     error
}

// Error implements the error interface
func (e *ExtMgrError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Package, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *ExtMgrError) Unwrap() error {
	return e.Err
}

// Message returns the wrapped error text without the type prefix.
func (e *ExtMgrError) Message() string {
	if e.Err == nil {
		return e.Type.String()
	}
	return e.Err.Error()
}

// NewError builds an ExtMgrError with a formatted message.
func NewError(t ErrorType, pkg string, code int, format string, args ...interface{}) *ExtMgrError {
	return &ExtMgrError{
		Type:    t,
		Package: pkg,
		Code:    code,
		Err:     fmt.Errorf(format, args...),
	}
}

// IsType reports whether err wraps an ExtMgrError of type t.
func IsType(err error, t ErrorType) bool {
	if _, ok := AsConflict(err); ok && t == ErrResolutionConflict {
		return true
	}
	var e *ExtMgrError
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsNotFound reports whether err represents a missing package or version.
func IsNotFound(err error) bool {
	return IsType(err, ErrNotFound)
}

// ConflictError aggregates dependency errors per declaring extension key.
type ConflictError struct {
	Errors ErrorMap
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return e.Errors.String()
}

// AsConflict extracts a ConflictError from err.
func AsConflict(err error) (*ConflictError, bool) {
	var c *ConflictError
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// RecordFromError converts err into an ErrorRecord. ExtMgrError codes and
// messages are kept, anything else becomes an install failure with code 0.
func RecordFromError(err error) ErrorRecord {
	var e *ExtMgrError
	if errors.As(err, &e) {
		return ErrorRecord{Code: e.Code, Message: e.Message()}
	}
	return ErrorRecord{Message: err.Error()}
}
