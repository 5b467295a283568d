package xcontext

import (
	"context"
	"time"
)

// DetachWithTimeout returns a context that keeps the values of ctx but not its
// cancellation, bounded by timeout instead. Used for work that must finish after
// the request that started it has returned, such as publishing a change event.
func DetachWithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(ctx, timeout)

	return ctx, cancel
}
