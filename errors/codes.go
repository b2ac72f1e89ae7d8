package errors

// ErrorCategory groups codes by how a caller should react to them.
type ErrorCategory string

const (
	CategoryTransient ErrorCategory = "transient"
	CategoryPermanent ErrorCategory = "permanent"
	CategoryResource  ErrorCategory = "resource"
	CategoryInternal  ErrorCategory = "internal"
)

func (c ErrorCategory) String() string {
	return string(c)
}

// ErrorCode identifies one failure of the limiter or the admission controller.
type ErrorCode string

const (
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"   // controller draining or stopped
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // bad rule, capacity or config file
	ErrCodeCanceled     ErrorCode = "CANCELED"      // request never reached the operation
	ErrCodeOperation    ErrorCode = "OPERATION"     // the protected operation returned an error
	ErrCodeRateLimit    ErrorCode = "RATE_LIMITED"
	ErrCodeCapacity     ErrorCode = "CAPACITY" // admission queue full
	ErrCodeInternal     ErrorCode = "INTERNAL"
	ErrCodePanic        ErrorCode = "PANIC" // the protected operation panicked
)

type codeInfo struct {
	category    ErrorCategory
	retryable   bool
	description string
}

var codeTable = map[ErrorCode]codeInfo{
	ErrCodeTimeout:      {CategoryTransient, true, "operation timed out"},
	ErrCodeUnavailable:  {CategoryTransient, true, "controller not accepting requests"},
	ErrCodeInvalidInput: {CategoryPermanent, false, "invalid configuration"},
	ErrCodeCanceled:     {CategoryPermanent, false, "canceled before admission"},
	ErrCodeOperation:    {CategoryPermanent, false, "operation failed"},
	ErrCodeRateLimit:    {CategoryResource, true, "rate limit exceeded"},
	ErrCodeCapacity:     {CategoryResource, true, "admission queue full"},
	ErrCodeInternal:     {CategoryInternal, false, "internal error"},
	ErrCodePanic:        {CategoryInternal, false, "operation panicked"},
}

var unknownCode = codeInfo{CategoryInternal, false, "unknown error"}

func (c ErrorCode) info() codeInfo {
	if i, ok := codeTable[c]; ok {
		return i
	}
	return unknownCode
}

func (c ErrorCode) String() string {
	return string(c)
}

// Known reports whether c is one of the codes declared in this package.
func (c ErrorCode) Known() bool {
	_, ok := codeTable[c]
	return ok
}

// Category returns the category the code belongs to. Unknown codes are internal.
func (c ErrorCode) Category() ErrorCategory {
	return c.info().category
}

// Retryable reports whether submitting the same request again may succeed.
func (c ErrorCode) Retryable() bool {
	return c.info().retryable
}

// Description is a short human readable text for the code.
func (c ErrorCode) Description() string {
	return c.info().description
}
