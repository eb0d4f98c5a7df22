package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

func isNotImplemented(err error) bool {
	return err != nil && errors.Is(err, ErrNotImplemented)
}

type dispatchResult[T any] struct {
	value T
	err   error
}

// dispatch is the failure-isolation boundary around every connector call.
// A panic inside fn becomes a *ProviderFailure returned to this caller only;
// a call that outlives the deadline returns ErrTimeout and the connector
// goroutine is abandoned, leaving all other sessions and in-flight jobs
// untouched.
func dispatch[T any](ctx context.Context, name, op string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Buffered so an abandoned call can still complete and exit.
	resultCh := make(chan dispatchResult[T], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in connector dispatch",
					"connector", name, "op", op,
					"error", rec, "stack", string(debug.Stack()))
				resultCh <- dispatchResult[T]{err: &ProviderFailure{
					Connector: name,
					Op:        op,
					Err:       fmt.Errorf("panic: %v", rec),
				}}
			}
		}()
		value, err := fn(callCtx)
		resultCh <- dispatchResult[T]{value: value, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %s %s", ErrTimeout, name, op)
		}
		return zero, callCtx.Err()
	}
}
