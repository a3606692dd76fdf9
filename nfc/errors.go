package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific type of NFC error for programmatic handling.
type ErrorCode int

const (
	// Tag operation errors (100-199)
	ErrCodeNotSupported ErrorCode = iota + 100
	ErrCodeAuthFailed
	ErrCodeReadFailed
	ErrCodeWriteFailed
	ErrCodeCapacityExceeded
	ErrCodeInvalidData
	ErrCodeNoTag
)

const (
	// Chip and transport errors (200-299)
	ErrCodeChipNotFound ErrorCode = iota + 200
	ErrCodeTransport
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "Read", "Format")
	TagUID  string // Optional: UID of tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewNotSupportedError creates an error for unsupported operations.
func NewNotSupportedError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNotSupported,
		Op:      op,
		Message: "operation not supported",
	}
}

// NewAuthError creates an error for authentication failures.
func NewAuthError(op, tagUID string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeAuthFailed,
		Op:      op,
		TagUID:  tagUID,
		Message: "authentication failed",
		Cause:   cause,
	}
}

// NewReadError creates an error for read failures.
func NewReadError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeReadFailed,
		Op:      op,
		Message: "read failed",
		Cause:   cause,
	}
}

// NewWriteError creates an error for write failures.
func NewWriteError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeWriteFailed,
		Op:      op,
		Message: "write failed",
		Cause:   cause,
	}
}

// NewCapacityError reports a message that does not fit the tag or the
// scratch buffer.
func NewCapacityError(op string, need, have int) *NFCError {
	return &NFCError{
		Code:    ErrCodeCapacityExceeded,
		Op:      op,
		Message: fmt.Sprintf("message needs %d bytes, only %d available", need, have),
	}
}

// NewNoTagError is returned by operations that need a detected tag.
func NewNoTagError(op string) *NFCError {
	return &NFCError{
		Code:    ErrCodeNoTag,
		Op:      op,
		Message: "no tag present",
	}
}

// NewChipNotFoundError is returned when the reader chip does not answer the
// firmware query. It is fatal: nothing else can work without the chip.
func NewChipNotFoundError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeChipNotFound,
		Op:      op,
		Message: "reader chip not found",
		Cause:   cause,
	}
}

// NewTransportError creates an error for failed chip exchanges.
func NewTransportError(op string, cause error) *NFCError {
	return &NFCError{
		Code:    ErrCodeTransport,
		Op:      op,
		Message: "chip exchange failed",
		Cause:   cause,
	}
}

// IsNotSupportedError checks if an error indicates an unsupported operation.
func IsNotSupportedError(err error) bool {
	if err == nil {
		return false
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code == ErrCodeNotSupported
	}
	// Fallback to string matching for errors from the bindings
	errStr := err.Error()
	return strings.Contains(errStr, "not supported") ||
		strings.Contains(errStr, "operation not supported")
}

// IsAuthError checks if an error indicates authentication failure.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code == ErrCodeAuthFailed
	}
	errStr := err.Error()
	return strings.Contains(errStr, "authentication")
}

// IsFatalError reports whether err means the adapter cannot be used at all.
func IsFatalError(err error) bool {
	return GetErrorCode(err) == ErrCodeChipNotFound
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// WrapError wraps an existing error with NFC context.
func WrapError(code ErrorCode, op, message string, cause error) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...interface{}) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}
