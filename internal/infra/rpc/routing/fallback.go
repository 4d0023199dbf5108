package routing

import (
	"context"
	"errors"
)

// ErrNoEndpoints is returned when an endpoint list is empty.
var ErrNoEndpoints = errors.New("no rpc endpoints configured")

// FallbackHook observes a failed endpoint. next is empty when endpoint was
// the last one.
type FallbackHook func(endpoint, next string, err error)

// Fallback runs attempt against each endpoint in order and returns the
// first success. When every endpoint fails it returns the last error.
func Fallback[T any](
	ctx context.Context,
	endpoints []string,
	attempt func(ctx context.Context, endpoint string) (T, error),
	onFail FallbackHook,
) (T, error) {
	var zero T
	if len(endpoints) == 0 {
		return zero, ErrNoEndpoints
	}

	var lastErr error
	for i, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := attempt(ctx, ep)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if onFail != nil {
			next := ""
			if i+1 < len(endpoints) {
				next = endpoints[i+1]
			}
			onFail(ep, next, err)
		}
	}
	return zero, lastErr
}
