package errors

import (
	"encoding/json"
	"time"
)

// wireError is the JSON shape of an Error as carried in lifecycle events.
type wireError struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Retryable bool              `json:"retryable"`
	Time      *time.Time        `json:"time,omitempty"`
}

// remoteCause stands in for a cause that only survived as text.
type remoteCause string

func (r remoteCause) Error() string { return string(r) }

func (e *Error) MarshalJSON() ([]byte, error) {
	w := wireError{
		Code:      e.code,
		Category:  e.Category(),
		Message:   e.msg,
		RequestID: e.requestID,
		Metadata:  e.meta,
		Retryable: e.Retryable(),
	}
	if e.cause != nil {
		w.Cause = e.cause.Error()
	}
	if !e.at.IsZero() {
		w.Time = &e.at
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores an Error published by another process. The cause
// chain is flattened to its text, so errors.Is against local sentinels no
// longer matches; compare codes instead.
func (e *Error) UnmarshalJSON(data []byte) error {
	var w wireError
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	retry := w.Retryable
	*e = Error{
		code:      w.Code,
		msg:       w.Message,
		requestID: w.RequestID,
		meta:      w.Metadata,
		retry:     &retry,
	}
	if w.Cause != "" {
		e.cause = remoteCause(w.Cause)
	}
	if w.Time != nil {
		e.at = *w.Time
	}
	return nil
}
