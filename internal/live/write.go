package live

import (
	"context"
	"errors"

	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/store"
)

// Refresher is implemented by every cache.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// PerformWrite runs writeFn and, only when it succeeds, refreshes owner once without
// waiting for the store's change notification. That notification still triggers its
// own refresh later. A failed write is returned as a *store.WriteError and leaves
// owner untouched. A failed refresh is logged and reflected in owner's status; the
// write itself is still reported as successful.
func PerformWrite[R any](ctx context.Context, writeFn func(ctx context.Context) (R, error), owner Refresher) (R, error) {
	res, err := writeFn(ctx)
	if err != nil {
		var zero R

		var writeErr *store.WriteError
		if !errors.As(err, &writeErr) {
			err = &store.WriteError{Err: err}
		}

		return zero, err
	}

	if owner != nil {
		if err := owner.Refresh(ctx); err != nil {
			log.Warn(ctx, "write-through refresh failed", log.Cause(err))
		}
	}

	return res, nil
}

// WriteRecord applies m through client and refreshes owner on success.
func WriteRecord(ctx context.Context, client store.Client, m store.Mutation, owner Refresher) (store.Record, error) {
	return PerformWrite(ctx, func(ctx context.Context) (store.Record, error) {
		return client.Write(ctx, m)
	}, owner)
}
