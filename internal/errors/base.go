// Package errors unifies construction, wrapping, and inspection of errors
// so call sites need a single import.
package errors

import (
	stderrors "errors"

	yanun "github.com/yanun0323/errors"
)

// New returns a new error with the given text.
func New(text string) error {
	return stderrors.New(text)
}

// Wrap annotates err with text. A nil err yields nil.
func Wrap(err error, text string) error {
	if err == nil {
		return nil
	}
	return yanun.Wrap(err, text)
}

// Wrapf annotates err with a formatted message. A nil err yields nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return yanun.Wrapf(err, format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain matching target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
