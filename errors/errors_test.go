package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeTable(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		category  ErrorCategory
		retryable bool
	}{
		{ErrCodeTimeout, CategoryTransient, true},
		{ErrCodeUnavailable, CategoryTransient, true},
		{ErrCodeInvalidInput, CategoryPermanent, false},
		{ErrCodeCanceled, CategoryPermanent, false},
		{ErrCodeOperation, CategoryPermanent, false},
		{ErrCodeRateLimit, CategoryResource, true},
		{ErrCodeCapacity, CategoryResource, true},
		{ErrCodeInternal, CategoryInternal, false},
		{ErrCodePanic, CategoryInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.True(t, tt.code.Known())
			assert.Equal(t, tt.category, tt.code.Category())
			assert.Equal(t, tt.retryable, tt.code.Retryable())
			assert.NotEqual(t, "unknown error", tt.code.Description())
		})
	}

	odd := ErrorCode("NOPE")
	assert.False(t, odd.Known())
	assert.Equal(t, CategoryInternal, odd.Category())
	assert.Equal(t, "unknown error", odd.Description())
}

func TestNew(t *testing.T) {
	err := New(ErrCodeCapacity, "admission queue is full", WithRequestID("req-1"))
	assert.Equal(t, "admission queue is full", err.Error())
	assert.Equal(t, ErrCodeCapacity, err.Code())
	assert.Equal(t, CategoryResource, err.Category())
	assert.Equal(t, "req-1", err.RequestID())
	assert.False(t, err.Time().IsZero())
	assert.Nil(t, err.Unwrap())

	assert.Equal(t, "admission queue full", New(ErrCodeCapacity, "").Error())
}

func TestRetryableOverride(t *testing.T) {
	assert.True(t, Unavailable("draining").Retryable())
	assert.False(t, Unavailable("draining", WithRetryable(false)).Retryable())
	assert.True(t, InvalidInput("bad", WithRetryable(true)).Retryable())

	assert.True(t, IsRetryable(fmt.Errorf("submit: %w", Unavailable("draining"))))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(ErrCodeInternal, "x", WithMetadata("rule", "2/300ms"))
	md := err.Metadata()
	md["rule"] = "changed"
	assert.Equal(t, "2/300ms", err.Metadata()["rule"])

	assert.NotNil(t, New(ErrCodeInternal, "x").Metadata())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, WrapWithCode(nil, ErrCodeOperation, "ignored"))

	root := errors.New("socket closed")
	err := Wrap(root, "publish event")
	assert.Equal(t, ErrCodeInternal, err.Code())
	assert.Equal(t, "publish event: socket closed", err.Error())
	assert.ErrorIs(t, err, root)
}

func TestWrapKeepsCode(t *testing.T) {
	inner := Canceled("controller stopped", WithRequestID("req-7"), WithMetadata("reason", "stop"))
	err := Wrap(inner, "request failed")

	assert.Equal(t, ErrCodeCanceled, err.Code())
	assert.Equal(t, "req-7", err.RequestID())
	assert.Equal(t, "stop", err.Metadata()["reason"])
	assert.ErrorIs(t, err, inner)
}

func TestWrapContextErrors(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, Wrap(context.DeadlineExceeded, "wait").Code())
	assert.Equal(t, ErrCodeCanceled, Wrap(context.Canceled, "wait").Code())
	assert.Equal(t, ErrCodeCanceled, Wrap(fmt.Errorf("op: %w", context.Canceled), "wait").Code())
}

func TestWrapWithCode(t *testing.T) {
	root := errors.New("upstream 503")
	err := WrapWithCode(root, ErrCodeOperation, "operation failed", WithRequestID("r"))
	assert.Equal(t, ErrCodeOperation, err.Code())
	assert.Equal(t, "r", err.RequestID())
	assert.ErrorIs(t, err, root)
}

func TestIsAndCode(t *testing.T) {
	err := fmt.Errorf("submit: %w", Unavailable("draining"))
	assert.True(t, Is(err, ErrCodeUnavailable))
	assert.False(t, Is(err, ErrCodeCapacity))
	assert.Equal(t, ErrCodeUnavailable, Code(err))

	assert.False(t, Is(nil, ""))
	assert.Equal(t, ErrorCode(""), Code(errors.New("plain")))
}

func TestJSONRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	orig := WrapWithCode(errors.New("machine jammed"), ErrCodeOperation, "operation failed",
		WithRequestID("req-3"),
		WithMetadata("customer", "42"),
		WithTime(at),
	)

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "OPERATION", raw["code"])
	assert.Equal(t, "permanent", raw["category"])
	assert.Equal(t, "machine jammed", raw["cause"])

	var got Error
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ErrCodeOperation, got.Code())
	assert.Equal(t, "req-3", got.RequestID())
	assert.Equal(t, "42", got.Metadata()["customer"])
	assert.True(t, at.Equal(got.Time()))
	assert.Equal(t, orig.Error(), got.Error())
	assert.False(t, got.Retryable())
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("kaboom")
	assert.Equal(t, ErrCodePanic, err.Code())
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, "string", err.Metadata()["panic_type"])
	assert.NotEmpty(t, err.Metadata()["stack"])

	cause := errors.New("nil map")
	err = RecoverPanic(cause)
	assert.ErrorIs(t, err, cause)

	err = RecoverPanic(7)
	assert.Contains(t, err.Error(), "7")
	assert.Equal(t, "int", err.Metadata()["panic_type"])
}
