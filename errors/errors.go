package errors

import (
	"maps"
	"strings"
	"time"
)

// Error is a coded failure, optionally tied to the admission request it
// happened to. Build one with New, Wrap or one of the shorthand helpers.
type Error struct {
	code      ErrorCode
	msg       string
	cause     error
	requestID string
	meta      map[string]string
	retry     *bool
	at        time.Time
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.msg)
	if e.cause != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() ErrorCode { return e.code }

func (e *Error) Category() ErrorCategory { return e.code.Category() }

func (e *Error) RequestID() string { return e.requestID }

// Time is when the error was created.
func (e *Error) Time() time.Time { return e.at }

// Retryable reports the per-error override if one was set, else the
// code's default.
func (e *Error) Retryable() bool {
	if e.retry != nil {
		return *e.retry
	}
	return e.code.Retryable()
}

// Metadata returns a copy of the error's key/value context.
func (e *Error) Metadata() map[string]string {
	if e.meta == nil {
		return map[string]string{}
	}
	return maps.Clone(e.meta)
}

// Option configures an Error at construction.
type Option func(*Error)

func WithCause(cause error) Option {
	return func(e *Error) { e.cause = cause }
}

func WithRequestID(id string) Option {
	return func(e *Error) { e.requestID = id }
}

func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.meta == nil {
			e.meta = make(map[string]string, 1)
		}
		e.meta[key] = value
	}
}

// WithRetryable overrides the code's default retry hint.
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.retry = &retryable }
}

// WithTime replaces the creation time, mainly for tests with a fake clock.
func WithTime(t time.Time) Option {
	return func(e *Error) { e.at = t }
}

// New returns an error with code and message. An empty message falls back
// to the code's description.
func New(code ErrorCode, message string, opts ...Option) *Error {
	if message == "" {
		message = code.Description()
	}
	e := &Error{code: code, msg: message, at: time.Now()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

func Unavailable(message string, opts ...Option) *Error {
	return New(ErrCodeUnavailable, message, opts...)
}

func Canceled(message string, opts ...Option) *Error {
	return New(ErrCodeCanceled, message, opts...)
}
