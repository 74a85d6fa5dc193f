package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorContext annotates an error with the operation that produced it, so
// that errors propagated up several layers still read sensibly.
type ErrorContext struct {
	Context string
	Err     error
}

func (err ErrorContext) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

// Unwrap returns the wrapped error.
func (err ErrorContext) Unwrap() error {
	return err.Err
}

// New returns an error with the given message.
func New(msg string) error {
	return stderrors.New(msg)
}

// WithContext wraps `err` with a short description of the operation that
// failed.
func WithContext(err error, context string) error {
	return ErrorContext{Context: context, Err: err}
}

// FriendlyError is an error whose message is polished enough to be shown
// directly to the user, without the surrounding context chain.
type FriendlyError struct {
	Message string
}

func (err FriendlyError) Error() string {
	return err.Message
}

// FriendlyMessage implements the friendly error interface used by
// GetPrintableMessage.
func (err FriendlyError) FriendlyMessage() string {
	return err.Message
}

// NewFriendlyError creates a FriendlyError according to the format specifier.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

// GetPrintableMessage returns the message that should be shown to the user
// for `err`. If any error in the chain provides a friendly message, that
// message is preferred over the raw context chain.
func GetPrintableMessage(err error) string {
	if err == nil {
		return ""
	}
	for cur := err; cur != nil; cur = stderrors.Unwrap(cur) {
		if friendly, ok := cur.(interface{ FriendlyMessage() string }); ok {
			return friendly.FriendlyMessage()
		}
	}
	return err.Error()
}
