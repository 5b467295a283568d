package live

import (
	"context"
	"time"
)

// View is the untyped form of a cache state, shaped for transports.
type View struct {
	Topic     string    `json:"topic"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Data      any       `json:"data"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Collection is a cache with its element type erased.
type Collection interface {
	Topic() string
	Name() string
	View() View
	Refresh(ctx context.Context) error
	Watch() (View, <-chan View, func())
	Dispose()
}

// Erase wraps c as a Collection.
func Erase[T any](c *Cache[T]) Collection {
	return erased[T]{c: c}
}

type erased[T any] struct {
	c *Cache[T]
}

func (e erased[T]) Topic() string {
	return e.c.Topic()
}

func (e erased[T]) Name() string {
	return e.c.Name()
}

func (e erased[T]) View() View {
	return e.view(e.c.State())
}

func (e erased[T]) Refresh(ctx context.Context) error {
	return e.c.Refresh(ctx)
}

func (e erased[T]) Dispose() {
	e.c.Dispose()
}

func (e erased[T]) Watch() (View, <-chan View, func()) {
	current, states, stop := e.c.Watch()

	out := make(chan View, 1)

	go func() {
		defer close(out)

		for state := range states {
			view := e.view(state)

			select {
			case out <- view:
			default:
				// keep only the latest view for a slow reader
				select {
				case <-out:
				default:
				}

				out <- view
			}
		}
	}()

	return e.view(current), out, stop
}

func (e erased[T]) view(state State[T]) View {
	data := state.Snapshot
	if data == nil {
		data = []T{}
	}

	return View{
		Topic:     e.c.Topic(),
		Status:    state.Status,
		Error:     state.Message(),
		Data:      data,
		UpdatedAt: state.UpdatedAt,
	}
}
