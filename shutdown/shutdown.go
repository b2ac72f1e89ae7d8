package shutdown

import (
	"context"
	"errors"
	"time"

	"github.com/vinayprograms/admitkit/logging"
)

// Common errors.
var (
	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed during shutdown.
	ErrHandlerFailed = errors.New("one or more handlers failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Conventional phases. Lower phases run first.
const (
	// PhaseIntake stops producers from submitting new work.
	PhaseIntake = 10

	// PhaseDrain lets controllers finish or cancel queued work.
	PhaseDrain = 20

	// PhaseTelemetry flushes exporters and closes connections.
	PhaseTelemetry = 30
)

// Handler is implemented by components that need graceful shutdown.
type Handler interface {
	// OnShutdown is called when shutdown is initiated. ctx is canceled
	// when the shutdown deadline passes.
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult contains the result of a single handler's shutdown.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result contains the complete shutdown result.
type Result struct {
	// TotalDuration of the entire shutdown process.
	TotalDuration time.Duration

	// Results for each handler that ran, in phase order.
	Results []HandlerResult

	// Err is the overall error (nil if all handlers succeeded).
	Err error
}

// Failed returns true if any handler failed or the deadline passed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// Timeout bounds ShutdownWithTimeout(0) and signal-triggered shutdown.
	// Default: 30 seconds
	Timeout time.Duration

	// ContinueOnError runs later phases even after a handler fails.
	// Default: true
	ContinueOnError bool

	// Logger receives one entry per handler. Nil disables logging.
	Logger *logging.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
	}
}

type registration struct {
	name    string
	handler Handler
	phase   int
}
