package tftp

import (
	"context"
	"errors"
	"time"
)

// ErrTimedOut is yielded when withTimeout's delay expires before fn
// returns.
var ErrTimedOut = errors.New("tftp: timed out")

// withTimeout races fn against d. If fn returns first, its result is
// returned. If d elapses first, ErrTimedOut is returned and fn's
// goroutine is left to finish in the background — fn must be safe to
// abandon (the handler Open* calls used here only touch the caller's
// own locals and a Handler that is expected to honor ctx cancellation).
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-cctx.Done():
		select {
		case r := <-done:
			return r.v, r.err
		default:
		}
		return zero, ErrTimedOut
	}
}
