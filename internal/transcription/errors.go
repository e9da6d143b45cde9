package transcription

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the HTTP layer can map them to status codes.
type Kind string

const (
	KindUnsupportedFormat    Kind = "unsupported_format"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindEmptyFile            Kind = "empty_file"
	KindBadRequest           Kind = "bad_request"
	KindNotFound             Kind = "not_found"
	KindProviderUnconfigured Kind = "provider_unconfigured"
	KindProviderError        Kind = "provider_error"
	KindStoreUnavailable     Kind = "store_unavailable"
	KindUnexpected           Kind = "unexpected"
)

// Error is returned by every fallible service operation. Message is safe to
// show to clients; Err keeps the cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or KindUnexpected for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
