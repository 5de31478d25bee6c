// Package errors provides the error taxonomy of the product catalog.
//
// Store implementations report low level outcomes with the sentinel errors below;
// the service translates them into *Error values carrying a Kind, which the
// transports map onto status codes.
package errors

import (
	"errors"
	"net/http"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrDuplicate       = errors.New("unique constraint violation")
	ErrConstraint      = errors.New("constraint violation")
)

// Kind classifies a catalog error.
type Kind int

const (
	Internal Kind = iota
	InvalidArgument
	NotFound
	Conflict
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status returns the HTTP-style status code for the kind.
func (k Kind) Status() int {
	switch k {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error returned by every catalog operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP-style status code of the error.
func (e *Error) Status() int {
	return e.Kind.Status()
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// StatusOf returns the HTTP-style status code for err.
func StatusOf(err error) int {
	return KindOf(err).Status()
}

// MessageOf returns the caller-facing message for err.
// Errors outside the taxonomy never leak their text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
