package formula

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors raised by the formula layer itself. Errors
// coming from a backend (formula syntax, missing columns) are returned
// unchanged and carry no kind.
type ErrorKind string

const (
	KindConfig        ErrorKind = "config"
	KindType          ErrorKind = "type"
	KindSpecification ErrorKind = "specification"
)

// Error is an error raised while validating input or configuration.
type Error struct {
	Kind    ErrorKind
	Msg     string
	Allowed []string // legal alternatives, when enumerable
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

// Unwrap allows errors.Is to reach sentinel causes such as ErrNotInstalled.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels ErrConfig, ErrType and ErrSpecification.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

var (
	ErrConfig        = &Error{Kind: KindConfig}
	ErrType          = &Error{Kind: KindType}
	ErrSpecification = &Error{Kind: KindSpecification}

	ErrUnknownEngine = errors.New("unknown formula engine")
	ErrNotInstalled  = errors.New("formula engine not installed")
)

func configError(cause error, allowed []string, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...), Allowed: allowed, Err: cause}
}

func typeError(format string, args ...any) *Error {
	return &Error{Kind: KindType, Msg: fmt.Sprintf(format, args...)}
}

func specError(format string, args ...any) *Error {
	return &Error{Kind: KindSpecification, Msg: fmt.Sprintf(format, args...)}
}
