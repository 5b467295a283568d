package watcher

import (
	"context"
	"sync"
)

type MemoryWatcherOptions struct {
	Buffer int

	// Conflate replaces the oldest pending value when a subscriber is full,
	// so a slow subscriber always ends up with the latest value.
	Conflate bool
}

type memoryWatcher[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	subs     map[uint64]chan T
	buffer   int
	conflate bool
	closed   bool
}

func NewMemoryWatcher[T any](opts MemoryWatcherOptions) Notifier[T] {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1
	}

	return &memoryWatcher[T]{
		subs:     make(map[uint64]chan T),
		buffer:   buffer,
		conflate: opts.Conflate,
	}
}

func (w *memoryWatcher[T]) Watch(_ context.Context) (<-chan T, func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, nil, ErrClosed
	}

	id := w.nextID
	w.nextID++

	ch := make(chan T, w.buffer)
	w.subs[id] = ch

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()

		sub, ok := w.subs[id]
		if !ok {
			return
		}

		delete(w.subs, id)
		close(sub)
	}, nil
}

func (w *memoryWatcher[T]) Notify(_ context.Context, v T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ch := range w.subs {
		send(ch, v, w.conflate)
	}

	return nil
}

func (w *memoryWatcher[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true

	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}

	return nil
}

// send never blocks. With conflate set, a full channel drops its oldest value.
func send[T any](ch chan T, v T, conflate bool) {
	select {
	case ch <- v:
		return
	default:
	}

	if !conflate {
		return
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- v:
	default:
	}
}
