package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/admitkit/logging"
)

// Coordinator runs registered handlers phase by phase. Handlers within a
// phase run concurrently.
type Coordinator struct {
	config Config
	log    *logging.Logger

	mu       sync.Mutex
	handlers []registration

	once   sync.Once
	done   chan struct{}
	result *Result
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	log := config.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Coordinator{
		config: config,
		log:    log.WithComponent("shutdown"),
		done:   make(chan struct{}),
	}
}

// Register adds a handler to run in the given phase.
func (c *Coordinator) Register(name string, phase int, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: handler, phase: phase})
}

// RegisterFunc registers a function as a handler.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, HandlerFunc(fn))
}

// Shutdown runs every handler once, bounded by the first caller's ctx.
// Every call, the first included, waits for the handlers or its own ctx,
// whichever ends first, and returns ErrTimeout in the latter case.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		go func() {
			c.result = c.run(ctx)
			close(c.done)
		}()
	})

	select {
	case <-c.done:
		return c.result.Err
	default:
	}
	select {
	case <-c.done:
		return c.result.Err
	case <-ctx.Done():
		return ErrTimeout
	}
}

// ShutdownWithTimeout runs Shutdown bounded by timeout, or by the
// configured timeout when zero.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals starts shutdown on SIGINT, SIGTERM or when ctx ends.
// The returned context is canceled as soon as shutdown begins, so
// producers can watch it to stop early.
func (c *Coordinator) HandleSignals(ctx context.Context) context.Context {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCtx.Done()
		stop()
		c.log.Info("shutdown_requested", map[string]interface{}{"cause": context.Cause(sigCtx).Error()})
		_ = c.ShutdownWithTimeout(0)
	}()
	return sigCtx
}

// Done returns a channel that is closed when shutdown is complete.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the overall shutdown error once Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.result.Err
	default:
		return nil
	}
}

// Result returns the detailed shutdown result, or nil before Done.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) *Result {
	start := time.Now()

	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &Result{Results: make([]HandlerResult, 0, len(handlers))}
	var failed []string

	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			result.Err = ErrTimeout
			break
		}

		phaseResults, err := c.runPhase(ctx, group)
		result.Results = append(result.Results, phaseResults...)
		if err != nil {
			for _, hr := range phaseResults {
				if hr.Err != nil {
					failed = append(failed, hr.Name)
				}
			}
			if !c.config.ContinueOnError {
				break
			}
		}
	}

	if result.Err == nil && len(failed) > 0 {
		result.Err = fmt.Errorf("%w: %s", ErrHandlerFailed, strings.Join(failed, ", "))
	}
	result.TotalDuration = time.Since(start)
	return result
}

// runPhase runs one phase's handlers concurrently and returns the first
// handler error.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) ([]HandlerResult, error) {
	results := make([]HandlerResult, len(group))
	var g errgroup.Group

	for i, r := range group {
		g.Go(func() error {
			started := time.Now()
			err := r.handler.OnShutdown(ctx)
			results[i] = HandlerResult{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(started),
				Err:      err,
			}

			fields := map[string]interface{}{
				"handler":  r.name,
				"phase":    r.phase,
				"duration": results[i].Duration,
			}
			if err != nil {
				fields["error"] = err
				c.log.Warn("handler_failed", fields)
			} else {
				c.log.Debug("handler_done", fields)
			}
			return err
		})
	}

	return results, g.Wait()
}

// groupByPhase splits handlers sorted by phase into one slice per phase.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i := 0; i < len(handlers); {
		j := i + 1
		for j < len(handlers) && handlers[j].phase == handlers[i].phase {
			j++
		}
		groups = append(groups, handlers[i:j])
		i = j
	}
	return groups
}
