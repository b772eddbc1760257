package retry

import (
	"context"
	"time"
)

// Do invokes fn until it succeeds, up to attempts tries, sleeping a fixed
// delay between failures. The last error is returned when all attempts fail.
func Do[T any](ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
		var v T
		if v, err = fn(ctx); err == nil {
			return v, nil
		}
	}
	return zero, err
}
