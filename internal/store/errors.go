package store

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorCodeInvalidArgument      ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeInvalidState         ErrorCode = "INVALID_STATE"
	ErrorCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrorCodeTransportUnavailable ErrorCode = "TRANSPORT_UNAVAILABLE"
)

// Error is a classified failure returned by the store and its appliers.
type Error struct {
	Code ErrorCode
	Msg  string
	Err  error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewInvalidArgument(format string, args ...any) error {
	return &Error{Code: ErrorCodeInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func NewInvalidState(format string, args ...any) error {
	return &Error{Code: ErrorCodeInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func NewNotFound(format string, args ...any) error {
	return &Error{Code: ErrorCodeNotFound, Msg: fmt.Sprintf(format, args...)}
}

// NewTransportUnavailable wraps a transport failure without altering it.
func NewTransportUnavailable(msg string, err error) error {
	return &Error{Code: ErrorCodeTransportUnavailable, Msg: msg, Err: err}
}

// CodeOf returns the code of a classified error, or "" for anything else.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var se *Error
	if !errors.As(err, &se) {
		return ""
	}
	return se.Code
}

func IsInvalidArgument(err error) bool {
	return CodeOf(err) == ErrorCodeInvalidArgument
}

func IsInvalidState(err error) bool {
	return CodeOf(err) == ErrorCodeInvalidState
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrorCodeNotFound
}

func IsTransportUnavailable(err error) bool {
	return CodeOf(err) == ErrorCodeTransportUnavailable
}
