package watcher

import (
	"context"
	"errors"
)

// ErrClosed is returned by Watch once the watcher has been closed.
var ErrClosed = errors.New("watcher: closed")

// Watcher provides a best-effort cross-goroutine / cross-instance watch stream.
//
// It is designed for change notifications rather than durable delivery:
// implementations may drop or conflate events when subscribers are slow or disconnected.
//
// Watch is reference-counted via the returned stop function; callers must call stop
// exactly once to avoid resource leaks (e.g. goroutines, Redis pubsub connections).
// A channel that is closed before stop was called means the stream was lost.
type Watcher[T any] interface {
	// Watch subscribes to the watch stream and returns:
	//   - a channel that emits events
	//   - a stop function to unsubscribe (must be called once)
	//   - an error when the underlying stream could not be established
	Watch(ctx context.Context) (<-chan T, func(), error)
}

// Notifier is a Watcher that can also publish events.
//
// Typical usage:
//   - writer side (store mutations): call Notify(...) after updating the source of truth
//   - reader side (subscriptions): depend only on Watcher
type Notifier[T any] interface {
	Watcher[T]

	// Notify broadcasts the value to all subscribers.
	Notify(ctx context.Context, v T) error

	// Close ends every open watch stream.
	Close() error
}
