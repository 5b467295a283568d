package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/looplj/lifeline/internal/log"
)

func (s *SQLStore) Subscribe(ctx context.Context, topic string, onChange ChangeFunc) (Subscription, error) {
	if topic == "" {
		return nil, &SubscriptionError{Err: errors.New("topic is required")}
	}

	if onChange == nil {
		return nil, &SubscriptionError{Topic: topic, Err: errors.New("change callback is required")}
	}

	if s.topics == nil {
		return nil, &SubscriptionError{Topic: topic, Err: errors.New("change notifications are disabled")}
	}

	notifier, err := s.topics.Get(topic)
	if err != nil {
		return nil, &SubscriptionError{Topic: topic, Err: err}
	}

	events, stop, err := notifier.Watch(ctx)
	if err != nil {
		return nil, &SubscriptionError{Topic: topic, Err: err}
	}

	sub := &watchSubscription{
		topic: topic,
		stop:  stop,
		done:  make(chan struct{}),
	}

	go sub.pump(context.WithoutCancel(ctx), events, onChange)

	log.Debug(ctx, "store subscription started", log.String("topic", topic))

	return sub, nil
}

// Unsubscribe stops delivery. It does not wait for an in-progress callback to return.
func (s *SQLStore) Unsubscribe(ctx context.Context, sub Subscription) error {
	ws, ok := sub.(*watchSubscription)
	if !ok || ws == nil {
		return errors.New("store: unknown subscription")
	}

	ws.cancel()

	log.Debug(ctx, "store subscription stopped", log.String("topic", ws.topic))

	return nil
}

type watchSubscription struct {
	topic string
	stop  func()

	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}

	mu  sync.Mutex
	err error
}

func (s *watchSubscription) Topic() string {
	return s.topic
}

func (s *watchSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *watchSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *watchSubscription) pump(ctx context.Context, events <-chan ChangeEvent, onChange ChangeFunc) {
	for ev := range events {
		if s.stopped.Load() {
			continue
		}

		onChange(ctx, ev)
	}

	if !s.stopped.Load() {
		log.Warn(ctx, "store subscription lost", log.String("topic", s.topic))
		s.finish(ErrSubscriptionLost)
	}
}

func (s *watchSubscription) cancel() {
	if s.stopped.Swap(true) {
		return
	}

	s.stop()
	s.finish(nil)
}

func (s *watchSubscription) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		close(s.done)
	})
}
