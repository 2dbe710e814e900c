package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies an import failure.
type Kind string

const (
	KindInvalidSchema    Kind = "InvalidSchema"
	KindRetrievalFailure Kind = "RetrievalFailure"
	KindWriteFailure     Kind = "WriteFailure"
)

// Error represents an import error
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrInvalidSchema) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a new Error
func New(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidSchema    = New(KindInvalidSchema, "invalid schema", nil)
	ErrRetrievalFailure = New(KindRetrievalFailure, "retrieval failure", nil)
	ErrWriteFailure     = New(KindWriteFailure, "write failure", nil)
)

// InvalidSchema reports a CSV header that matches no known record kind.
func InvalidSchema(source string, header []string) *Error {
	return New(KindInvalidSchema,
		fmt.Sprintf("invalid CSV format for %s (header: %s)", source, strings.Join(header, ",")), nil)
}

// RetrievalFailure reports a failed object fetch.
func RetrievalFailure(bucket, key string, err error) *Error {
	return New(KindRetrievalFailure, fmt.Sprintf("fetch s3://%s/%s", bucket, key), err)
}

// WriteFailure reports a failed store write for one item.
func WriteFailure(sku string, err error) *Error {
	return New(KindWriteFailure, fmt.Sprintf("write sku %q", sku), err)
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and "" otherwise.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
