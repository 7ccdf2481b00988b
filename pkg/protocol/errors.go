package protocol

import (
	"errors"
	"fmt"
)

// Code is a machine-readable RPC error code, carried in a Response's
// Error field. Codes are stable strings rather than small integers so
// that new codes never collide across independently-versioned clients
// and servers.
type Code string

const (
	ErrTransport         Code = "TransportError"
	ErrProtocol          Code = "ProtocolError"
	ErrAuthRequired      Code = "AuthRequired"
	ErrAuthFailed        Code = "AuthFailed"
	ErrNotBound          Code = "NotBound"
	ErrAlreadyBound      Code = "AlreadyBound"
	ErrNoSuchSharing     Code = "NoSuchSharing"
	ErrReadOnly          Code = "ReadOnly"
	ErrPathEscapes       Code = "PathEscapesSharing"
	ErrNotFound          Code = "NotFound"
	ErrNotADirectory     Code = "NotADirectory"
	ErrIsADirectory      Code = "IsADirectory"
	ErrExists            Code = "Exists"
	ErrPermissionDenied  Code = "PermissionDenied"
	ErrRexecDisabled     Code = "RexecDisabled"
	ErrTruncated         Code = "Truncated"
	ErrAborted           Code = "Aborted"
	ErrInvalidArgument   Code = "InvalidArgument"
)

// Error is the taxonomy error returned by server-side RPC handlers and
// carried verbatim into a Response.Error field.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// NewError builds a taxonomy error with a message.
func NewError(code Code, format string, args ...any) *Error {
	if format == "" {
		return &Error{Code: code}
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a *Error from a generic error, wrapping it as an
// InvalidArgument error if it does not already carry a taxonomy code.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: ErrInvalidArgument, Message: err.Error()}
}
