package errs

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalid
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Error is a domain error carrying a Kind the transport layers map to
// their own status codes.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Unauthenticated(msg string) *Error { return E(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error       { return E(KindForbidden, msg) }
func NotFound(msg string) *Error        { return E(KindNotFound, msg) }
func Conflict(msg string) *Error        { return E(KindConflict, msg) }
func Invalid(msg string) *Error         { return E(KindInvalid, msg) }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
