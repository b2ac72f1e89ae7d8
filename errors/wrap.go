package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Wrap adds message to err and keeps err in the chain. A coded err keeps
// its code, request ID and metadata. Context errors become TIMEOUT or
// CANCELED and anything else INTERNAL. Wrap(nil) is nil.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var coded *Error
	switch {
	case errors.As(err, &coded):
		w := &Error{
			code:      coded.code,
			msg:       message,
			cause:     err,
			requestID: coded.requestID,
			meta:      coded.Metadata(),
			retry:     coded.retry,
			at:        coded.at,
		}
		for _, opt := range opts {
			opt(w)
		}
		return w
	case errors.Is(err, context.DeadlineExceeded):
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	case errors.Is(err, context.Canceled):
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	default:
		return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
	}
}

// WrapWithCode wraps err under an explicit code. WrapWithCode(nil) is nil.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// Code returns the code of the outermost *Error in err's chain, or "".
func Code(err error) ErrorCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code
	}
	return ""
}

// Is reports whether the outermost *Error in err's chain has code. Use the
// standard library's errors.Is to match sentinel values.
func Is(err error, code ErrorCode) bool {
	return err != nil && Code(err) == code
}

// IsRetryable reports the retry hint of the outermost *Error. Uncoded
// errors are not retryable.
func IsRetryable(err error) bool {
	var coded *Error
	return errors.As(err, &coded) && coded.Retryable()
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}

// RecoverPanic turns a value returned by recover into a PANIC error. The
// panic value's type and the top of the stack are kept as metadata.
func RecoverPanic(recovered any) *Error {
	if recovered == nil {
		return nil
	}

	opts := []Option{
		WithMetadata("panic_type", fmt.Sprintf("%T", recovered)),
		WithMetadata("stack", stackTop(debug.Stack(), 12)),
	}
	switch v := recovered.(type) {
	case error:
		return New(ErrCodePanic, "operation panicked", append(opts, WithCause(v))...)
	case string:
		return New(ErrCodePanic, "operation panicked: "+v, opts...)
	default:
		return New(ErrCodePanic, fmt.Sprintf("operation panicked: %v", v), opts...)
	}
}

func stackTop(stack []byte, lines int) string {
	parts := strings.SplitN(string(stack), "\n", lines+1)
	if len(parts) > lines {
		parts = parts[:lines]
	}
	return strings.Join(parts, "\n")
}
