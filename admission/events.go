package admission

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/vinayprograms/admitkit/bus"
	"github.com/vinayprograms/admitkit/errors"
)

// EventType names a request lifecycle transition.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventRejected  EventType = "rejected"
	EventAdmitted  EventType = "admitted"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCanceled  EventType = "canceled"
)

// Event is the JSON payload published on the bus for each transition.
type Event struct {
	Type       EventType     `json:"type"`
	Controller string        `json:"controller,omitempty"`
	RequestID  string        `json:"request_id"`
	Time       time.Time     `json:"time"`
	QueueDepth int           `json:"queue_depth,omitempty"`
	Waited     time.Duration `json:"waited_ns,omitempty"`
	Ran        time.Duration `json:"ran_ns,omitempty"`
	Error      *errors.Error `json:"error,omitempty"`
}

// Subject returns the bus subject the event is published to under prefix.
func (e Event) Subject(prefix string) string {
	return bus.Subject(prefix, e.Controller, string(e.Type))
}

// eventError converts an outcome error into its structured form. Coded
// and context errors keep their meaning; anything else is an operation
// failure.
func eventError(err error) *errors.Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Code(err) != "",
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(err, "request failed")
	}
	return errors.WrapWithCode(err, errors.ErrCodeOperation, "operation failed")
}

func (c *Controller[A, R]) publish(ev Event) {
	if c.opts.bus == nil {
		return
	}
	ev.Controller = c.opts.name
	if ev.Time.IsZero() {
		ev.Time = c.opts.clock()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Warn("event_encode_failed", map[string]interface{}{"type": string(ev.Type), "error": err})
		return
	}
	if err := c.opts.bus.Publish(ev.Subject(c.opts.prefix), data); err != nil {
		c.log.Warn("event_publish_failed", map[string]interface{}{"type": string(ev.Type), "error": err})
	}
}
