package compiler

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a template could not be compiled
type ErrorKind int

const (
	ErrFileNotFound ErrorKind = iota + 1
	ErrIO
	ErrInvalidURL
	ErrMultipart
)

func (k ErrorKind) String() string {
	switch k {
	case ErrFileNotFound:
		return "file not found"
	case ErrIO:
		return "io error"
	case ErrInvalidURL:
		return "invalid url"
	case ErrMultipart:
		return "multipart error"
	default:
		return "compile error"
	}
}

// CompileError is returned when a template cannot be turned into a request.
// It is terminal for that single request only.
type CompileError struct {
	Kind   ErrorKind
	Target string // file path or URL involved
	Err    error
}

func (e *CompileError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Target)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Target, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a CompileError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Kind == kind
}
