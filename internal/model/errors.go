package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable classification of a failure. The HTTP layer maps
// each kind to exactly one status code.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindForbidden           ErrorKind = "FORBIDDEN"
	KindUnauthorized        ErrorKind = "UNAUTHORIZED"
	KindOwnerNotFound       ErrorKind = "OWNER_NOT_FOUND"
	KindOwnerInactive       ErrorKind = "OWNER_INACTIVE"
	KindInvalidTransition   ErrorKind = "INVALID_TRANSITION"
	KindInvalidArgument     ErrorKind = "INVALID_ARGUMENT"
	KindInvalidPermutation  ErrorKind = "INVALID_PERMUTATION"
	KindConflict            ErrorKind = "CONFLICT"
	KindStoreUnavailable    ErrorKind = "STORE_UNAVAILABLE"
	KindUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	KindInternal            ErrorKind = "INTERNAL"
)

// Error is a classified failure. Message is safe to show to clients; Err
// keeps the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrOwnerNotFound       = &Error{Kind: KindOwnerNotFound, Message: "artist not found"}
	ErrOwnerInactive       = &Error{Kind: KindOwnerInactive, Message: "artist inactive"}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition, Message: "invalid status transition"}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrInvalidPermutation  = &Error{Kind: KindInvalidPermutation, Message: "positions are not a permutation of the queue"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "conflict"}
	ErrStoreUnavailable    = &Error{Kind: KindStoreUnavailable, Message: "store unavailable"}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable, Message: "upstream unavailable"}
)

// E builds a classified error with a client-safe message.
func E(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind ErrorKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal Server Error"
}
