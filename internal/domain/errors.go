package domain

import (
	"errors"
	"strings"
)

// Storage outcomes shared by every adapter. Adapters wrap these with the
// table and the seq (or seq range) involved.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
)

// FieldError names one rejected field of a record.
type FieldError struct {
	Field   string
	Message string
}

func (f FieldError) String() string { return f.Field + " " + f.Message }

// ValidationError lists every rejected field of one entry. Seq may be
// empty, since a missing seq is itself a reason for rejection.
type ValidationError struct {
	Seq    string
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid entry")
	if e.Seq != "" {
		b.WriteString(" ")
		b.WriteString(e.Seq)
	}
	for i, f := range e.Errors {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.String())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
