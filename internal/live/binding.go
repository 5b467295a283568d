package live

import (
	"context"
)

// UseLiveCollection opens a cache owned by one consumer. The cache is disposed as
// soon as ctx is done, so a consumer only has to cancel its context when it goes away.
func UseLiveCollection[T any](ctx context.Context, reg Registrar, topic string, queryFn QueryFunc[T], opts Options[T]) (*Cache[T], error) {
	c, err := New(ctx, reg, topic, queryFn, opts)
	if err != nil {
		return nil, err
	}

	context.AfterFunc(ctx, c.Dispose)

	return c, nil
}

// Result is what a consumer binding exposes.
type Result[T any] struct {
	Snapshot []T
	Status   Status
	Error    string
	Refresh  func(ctx context.Context) error
}

func (c *Cache[T]) Result() Result[T] {
	state := c.State()

	return Result[T]{
		Snapshot: state.Snapshot,
		Status:   state.Status,
		Error:    state.Message(),
		Refresh:  c.Refresh,
	}
}
