package watcher

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/looplj/lifeline/internal/pkg/xredis"
)

// Topics lazily creates one Notifier per topic. In redis mode all topics share
// a single client and each topic maps to the channel ChannelPrefix+topic.
type Topics[T any] struct {
	cfg    Config
	client *redis.Client

	mu        sync.Mutex
	notifiers map[string]Notifier[T]
}

// NewTopics builds in-memory Topics, or redis Topics over a client dialed from
// cfg.Redis when cfg.Mode is ModeRedis.
func NewTopics[T any](cfg Config) (*Topics[T], error) {
	if cfg.Mode != ModeRedis {
		return &Topics[T]{
			cfg:       cfg,
			notifiers: make(map[string]Notifier[T]),
		}, nil
	}

	client, err := xredis.NewClient(cfg.Redis)
	if err != nil {
		return nil, err
	}

	return NewRedisTopics[T](client, cfg), nil
}

// NewRedisTopics builds Topics over an existing redis client. Close closes the client.
func NewRedisTopics[T any](client *redis.Client, cfg Config) *Topics[T] {
	cfg.Mode = ModeRedis

	return &Topics[T]{
		cfg:       cfg,
		client:    client,
		notifiers: make(map[string]Notifier[T]),
	}
}

// Get returns the notifier for topic, creating it on first use.
func (t *Topics[T]) Get(topic string) (Notifier[T], error) {
	if topic == "" {
		return nil, errors.New("watcher: topic is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := t.notifiers[topic]; ok {
		return n, nil
	}

	var (
		n   Notifier[T]
		err error
	)

	if t.client != nil {
		n, err = NewRedisWatcher[T](t.client, RedisWatcherOptions{
			Channel: t.cfg.ChannelPrefix + topic,
			Buffer:  t.cfg.Buffer,
		})
		if err != nil {
			return nil, err
		}
	} else {
		n = NewMemoryWatcher[T](MemoryWatcherOptions{Buffer: t.cfg.Buffer})
	}

	t.notifiers[topic] = n

	return n, nil
}

// Notify publishes v on topic.
func (t *Topics[T]) Notify(ctx context.Context, topic string, v T) error {
	n, err := t.Get(topic)
	if err != nil {
		return err
	}

	return n.Notify(ctx, v)
}

// Close closes every notifier and the shared redis client.
func (t *Topics[T]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error

	for topic, n := range t.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}

		delete(t.notifiers, topic)
	}

	if t.client != nil {
		if err := t.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
