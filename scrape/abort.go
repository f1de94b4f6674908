package scrape

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError marks a scrape that ran out of its own time budget.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scrape timed out after %s", e.After)
}

// ExternalAbortError marks a cancellation that arrived from outside the
// scrape (crawl shutdown, server shutdown, client disconnect).
type ExternalAbortError struct {
	Cause error
}

func (e *ExternalAbortError) Error() string {
	return fmt.Sprintf("scrape aborted externally: %v", e.Cause)
}

func (e *ExternalAbortError) Unwrap() error { return e.Cause }

// abortManager composes the external cancellation signal with the scrape's
// own deadline into one context. The first tier to fire becomes the
// cancellation cause; Close releases the deadline timer and the watch
// goroutine on every completion path.
type abortManager struct {
	ctx            context.Context
	cancelExternal context.CancelCauseFunc
	cancelDeadline context.CancelFunc
	done           chan struct{}
}

// newAbortManager starts the composite signal. external may be
// context.Background() when no outer tier exists.
func newAbortManager(external context.Context, timeout time.Duration) *abortManager {
	base, cancelExternal := context.WithCancelCause(context.Background())
	ctx, cancelDeadline := context.WithDeadlineCause(
		base, time.Now().Add(timeout), &TimeoutError{After: timeout})

	m := &abortManager{
		ctx:            ctx,
		cancelExternal: cancelExternal,
		cancelDeadline: cancelDeadline,
		done:           make(chan struct{}),
	}

	go func() {
		select {
		case <-external.Done():
			cancelExternal(&ExternalAbortError{Cause: context.Cause(external)})
		case <-ctx.Done():
		case <-m.done:
		}
	}()

	return m
}

// Context is the composite signal engines must honor. Its deadline lets
// budget-aware engines fail fast.
func (m *abortManager) Context() context.Context { return m.ctx }

// Cause returns the tier error that fired, or nil while live.
func (m *abortManager) Cause() error {
	if m.ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(m.ctx)
	if cause == context.Canceled {
		return nil
	}
	return cause
}

// Aborted reports whether any tier has fired.
func (m *abortManager) Aborted() bool { return m.ctx.Err() != nil }

// Close releases the deadline timer and the watch goroutine. Called exactly
// once via defer when the scrape returns.
func (m *abortManager) Close() {
	close(m.done)
	m.cancelDeadline()
	m.cancelExternal(context.Canceled)
}
