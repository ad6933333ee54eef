// Package provision creates the payment customer and local profile of a
// freshly authenticated user. Provisioning is best effort: failures are
// logged and never reach the caller's response.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dmitrymomot/launchkit/pkg/logger"
)

// DefaultTimeout bounds a single background task.
const DefaultTimeout = 10 * time.Second

// Runner runs tasks detached from the request that started them and keeps
// track of them so shutdown can wait.
type Runner struct {
	wg      sync.WaitGroup
	timeout time.Duration
	log     *slog.Logger
}

type RunnerOption func(*Runner)

func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{timeout: DefaultTimeout, log: logger.Noop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Go runs task in a new goroutine. The task context keeps the values of ctx
// but not its cancellation, and is bounded by the runner timeout.
func (r *Runner) Go(ctx context.Context, name string, task func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.ErrorContext(ctx, "provisioning task panicked",
					logger.Component("provision"),
					logger.Event(name),
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()

		start := time.Now()
		if err := task(ctx); err != nil {
			r.log.WarnContext(ctx, "provisioning task failed",
				logger.Component("provision"),
				logger.Event(name),
				logger.Duration(time.Since(start)),
				logger.Error(err),
			)
			return
		}
		r.log.DebugContext(ctx, "provisioning task done",
			logger.Component("provision"),
			logger.Event(name),
			logger.Duration(time.Since(start)),
		)
	}()
}

// Wait blocks until every started task returns or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
