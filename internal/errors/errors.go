package errors

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/hoangsonww/ed2k/ed2k"
)

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// File errors
	ErrCodeFileNotFound        ErrorCode = "FILE_NOT_FOUND"
	ErrCodePermissionDenied    ErrorCode = "PERMISSION_DENIED"
	ErrCodeReadFailed          ErrorCode = "READ_FAILED"
	ErrCodeMetadataUnavailable ErrorCode = "METADATA_UNAVAILABLE"
	ErrCodeNotRegularFile      ErrorCode = "NOT_REGULAR_FILE"

	// Configuration errors
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigMissing ErrorCode = "CONFIG_MISSING"

	// Cache errors
	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeCacheCorrupted   ErrorCode = "CACHE_CORRUPTED"

	// Output errors
	ErrCodeManifestFailed ErrorCode = "MANIFEST_FAILED"

	// Command line errors
	ErrCodeUsage ErrorCode = "USAGE"
)

// Ed2kError is the base error type for all ed2k errors
type Ed2kError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *Ed2kError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Ed2kError) Unwrap() error {
	return e.Err
}

// Is checks if this error matches the target
func (e *Ed2kError) Is(target error) bool {
	t, ok := target.(*Ed2kError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new ed2k error
func NewError(code ErrorCode, message string) *Ed2kError {
	return &Ed2kError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error
func WrapError(code ErrorCode, message string, err error) *Ed2kError {
	return &Ed2kError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ClassifyIO wraps an error returned by a file operation. op names the
// failed step ("open", "stat", "read"). The path is left to the caller.
func ClassifyIO(op string, err error) *Ed2kError {
	if err == nil {
		return nil
	}
	var code ErrorCode
	switch {
	case errors.Is(err, ed2k.ErrNotRegularFile):
		code = ErrCodeNotRegularFile
	case errors.Is(err, fs.ErrNotExist):
		code = ErrCodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		code = ErrCodePermissionDenied
	case op == "stat":
		code = ErrCodeMetadataUnavailable
	default:
		code = ErrCodeReadFailed
	}
	return WrapError(code, op, unwrapPath(err))
}

// Classify wraps an error returned by ed2k.OpenFile, ed2k.HashFile or a
// read of an opened file, taking the failed step from *fs.PathError. Other
// errors are read failures.
func Classify(err error) *Ed2kError {
	op := "read"
	var pe *fs.PathError
	if errors.As(err, &pe) {
		op = pe.Op
	}
	return ClassifyIO(op, err)
}

// unwrapPath strips *fs.PathError so the path is not reported twice.
func unwrapPath(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// Common error constructors

func NewConfigInvalidError(message string) *Ed2kError {
	return NewError(ErrCodeConfigInvalid, message)
}

func NewUsageError(message string) *Ed2kError {
	return NewError(ErrCodeUsage, message)
}

func NewCacheCorruptedError(key string, err error) *Ed2kError {
	return WrapError(ErrCodeCacheCorrupted, fmt.Sprintf("cache entry %s corrupted", key), err)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var e *Ed2kError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if GetErrorCode(err) == ErrCodeUsage {
		return 2
	}
	return 1
}
