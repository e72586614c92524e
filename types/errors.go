package types

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind represents the category of a client error
type Kind int

const (
	// KindUnknown represents an error outside the taxonomy
	KindUnknown Kind = iota
	// KindAddressResolution means the peer address could not be resolved
	KindAddressResolution
	// KindConnectTimeout means the connect did not complete within the timeout
	KindConnectTimeout
	// KindWriteTimeout means the socket never became writable within the timeout
	KindWriteTimeout
	// KindReadTimeout means no response data arrived within the timeout
	KindReadTimeout
	// KindSocketIO is any other OS-level socket failure
	KindSocketIO
	// KindMalformedResponse means the response could not be framed or parsed
	KindMalformedResponse
	// KindServer means the node reported a structured error
	KindServer
	// KindStatement means a statement handle was unknown or already closed
	KindStatement
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindAddressResolution: "address_resolution",
	KindConnectTimeout:    "connect_timeout",
	KindWriteTimeout:      "write_timeout",
	KindReadTimeout:       "read_timeout",
	KindSocketIO:          "socket_io",
	KindMalformedResponse: "malformed_response",
	KindServer:            "server",
	KindStatement:         "statement",
}

// String returns the snake_case name of the kind, used in logs and metrics.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified client error. Code is the server error code for
// KindServer, the OS errno for socket level failures and 0 otherwise.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind checks if the error is of a specific kind
func (e *Error) IsKind(kind Kind) bool {
	return e.Kind == kind
}

// NewError creates a new Error with the specified kind, code and message
func NewError(kind Kind, code int, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// NewErrorWithCause creates a new Error wrapping cause. When code is 0 the
// errno carried by cause, if any, is used.
func NewErrorWithCause(kind Kind, code int, message string, cause error) *Error {
	if code == 0 {
		code = Errno(cause)
	}
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// NewServerError creates the error for a structured error body. message is
// the already composed, caller facing text.
func NewServerError(code int, message string) *Error {
	return NewError(KindServer, code, message)
}

// NewMalformedResponseError creates a KindMalformedResponse error with code 0.
func NewMalformedResponseError(message string, cause error) *Error {
	return &Error{Kind: KindMalformedResponse, Message: message, Cause: cause}
}

// Errno extracts the OS error number from err, or 0 when there is none.
func Errno(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var cErr *Error
	if errors.As(err, &cErr) {
		return cErr.Kind
	}
	return KindUnknown
}

// Info projects err onto the code/message pair stored in sinks. Errors outside
// the taxonomy keep their text and get code 0.
func Info(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}
	var cErr *Error
	if errors.As(err, &cErr) {
		return ErrorInfo{Code: cErr.Code, Message: cErr.Error()}
	}
	return ErrorInfo{Message: err.Error()}
}

// IsTimeout checks if an error is a connect, write or read timeout
func IsTimeout(err error) bool {
	switch KindOf(err) {
	case KindConnectTimeout, KindWriteTimeout, KindReadTimeout:
		return true
	}
	return false
}

// IsConnectionError checks if an error happened while talking to the socket.
// Connection errors mark the connection as broken.
func IsConnectionError(err error) bool {
	switch KindOf(err) {
	case KindAddressResolution, KindConnectTimeout, KindWriteTimeout, KindReadTimeout, KindSocketIO:
		return true
	}
	return false
}

// IsServerError checks if the node reported a structured error
func IsServerError(err error) bool {
	return KindOf(err) == KindServer
}

// IsMalformedResponse checks if the response could not be parsed
func IsMalformedResponse(err error) bool {
	return KindOf(err) == KindMalformedResponse
}

// IsStatementError checks if an unknown or closed statement handle was used
func IsStatementError(err error) bool {
	return KindOf(err) == KindStatement
}
