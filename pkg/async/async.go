package async

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when awaiting a future exceeds the given timeout.
	ErrTimeout = errors.New("async: await timeout")
)

// Future represents the eventual result of a background function.
type Future struct {
	err  error
	done chan struct{}
}

// Await blocks until the function completes and returns its error.
func (f *Future) Await() error {
	<-f.done
	return f.err
}

// AwaitWithTimeout waits for completion up to the given timeout.
// Returns ErrTimeout if the function is still running when it elapses;
// the function itself keeps running in the background.
func (f *Future) AwaitWithTimeout(timeout time.Duration) error {
	select {
	case <-f.done:
		return f.err
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// Done reports completion without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Run executes fn on a new goroutine and returns a Future for its result.
// A pre-cancelled context short-circuits without invoking fn.
func Run(ctx context.Context, fn func(context.Context) error) *Future {
	f := &Future{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		select {
		case <-ctx.Done():
			f.err = ctx.Err()
			return
		default:
		}

		f.err = fn(ctx)
	}()

	return f
}

// Fire executes fn on a new goroutine with its own timeout-bounded context,
// detached from the caller. The result is discarded; intended for
// best-effort work such as audit emission where failure is ignored.
func Fire(timeout time.Duration, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = fn(ctx)
	}()
}
