package clone

import (
	"errors"
	"fmt"
)

// Kind classifies a clone failure by the stage that produced it.
type Kind string

const (
	KindInput      Kind = "input"
	KindConversion Kind = "conversion"
	KindSynthesis  Kind = "synthesis"
	KindInternal   Kind = "internal"
)

// Error is returned by Service.Clone. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrMissingAudio    = &Error{Kind: KindInput, Op: "validate", Message: "No audio file provided."}
	ErrMissingField    = &Error{Kind: KindInput, Op: "validate", Message: "Missing text or language."}
	ErrInvalidLanguage = &Error{Kind: KindInput, Op: "validate", Message: "Invalid language selected."}
)

// KindOf reports the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message carried by err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
