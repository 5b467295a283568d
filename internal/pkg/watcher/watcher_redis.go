package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/looplj/lifeline/internal/log"
)

type RedisWatcherOptions struct {
	Channel string
	Buffer  int
}

// redisWatcher keeps exactly one redis PUBSUB connection per channel while at least
// one local subscriber is watching.
type redisWatcher[T any] struct {
	client  *redis.Client
	channel string
	buffer  int

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan T
	closed bool

	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func NewRedisWatcher[T any](client *redis.Client, opts RedisWatcherOptions) (Notifier[T], error) {
	if client == nil {
		return nil, errors.New("watcher.RedisWatcher: redis client is required")
	}

	if opts.Channel == "" {
		return nil, errors.New("watcher.RedisWatcher: channel is required")
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1
	}

	return &redisWatcher[T]{
		client:  client,
		channel: opts.Channel,
		buffer:  buffer,
		subs:    make(map[uint64]chan T),
	}, nil
}

func (w *redisWatcher[T]) Watch(ctx context.Context) (<-chan T, func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, nil, ErrClosed
	}

	if len(w.subs) == 0 {
		if err := w.startLocked(ctx); err != nil {
			return nil, nil, err
		}
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

		if len(w.subs) == 0 {
			w.stopLocked()
		}
	}, nil
}

func (w *redisWatcher[T]) Notify(ctx context.Context, v T) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return w.client.Publish(ctx, w.channel, payload).Err()
}

func (w *redisWatcher[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.dropAllLocked()

	return nil
}

func (w *redisWatcher[T]) startLocked(ctx context.Context) error {
	if w.pubsub != nil {
		return nil
	}

	recvCtx, cancel := context.WithCancel(context.Background())

	ps := w.client.Subscribe(ctx, w.channel)
	if _, err := ps.Receive(ctx); err != nil {
		cancel()

		_ = ps.Close()

		return fmt.Errorf("subscribe redis channel %s: %w", w.channel, err)
	}

	w.pubsub = ps
	w.cancel = cancel

	go w.receive(recvCtx, ps)

	return nil
}

func (w *redisWatcher[T]) receive(ctx context.Context, ps *redis.PubSub) {
	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}

			if errors.Is(err, redis.ErrClosed) {
				log.Warn(context.Background(), "watcher redis connection closed, dropping subscribers",
					log.String("channel", w.channel))

				w.mu.Lock()
				if w.pubsub == ps {
					w.dropAllLocked()
				}
				w.mu.Unlock()

				return
			}

			log.Warn(context.Background(), "watcher redis watcher receive failed",
				log.String("channel", w.channel),
				log.Cause(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}

			continue
		}

		var v T
		if err := json.Unmarshal([]byte(msg.Payload), &v); err != nil {
			log.Warn(context.Background(), "watcher redis watcher decode failed",
				log.String("channel", w.channel),
				log.String("payload", msg.Payload),
				log.Cause(err))

			continue
		}

		w.mu.Lock()

		if w.pubsub == ps {
			for _, sub := range w.subs {
				send(sub, v, false)
			}
		}

		w.mu.Unlock()
	}
}

// dropAllLocked closes every subscriber channel without a matching stop call,
// which subscribers observe as a lost stream.
func (w *redisWatcher[T]) dropAllLocked() {
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}

	w.stopLocked()
}

func (w *redisWatcher[T]) stopLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}

	if w.pubsub != nil {
		_ = w.pubsub.Close()
		w.pubsub = nil
	}
}
