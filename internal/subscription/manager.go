// Package subscription multiplexes any number of change callbacks per topic over
// at most one live store subscription per topic.
package subscription

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/metrics"
	"github.com/looplj/lifeline/internal/store"
)

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("subscription: manager closed")

// HandleID identifies one registered callback.
type HandleID string

// Callback receives change events of a topic. Callbacks of one topic run one at a
// time in registration order.
type Callback func(ctx context.Context, ev store.ChangeEvent)

type Options struct {
	// ResubscribeInitialInterval is the first delay before retrying a lost subscription.
	ResubscribeInitialInterval time.Duration `conf:"resubscribe_initial_interval" yaml:"resubscribe_initial_interval" json:"resubscribe_initial_interval"`
	ResubscribeMaxInterval     time.Duration `conf:"resubscribe_max_interval" yaml:"resubscribe_max_interval" json:"resubscribe_max_interval"`

	// ResubscribeMaxElapsed stops background retries; the next Register tries again.
	ResubscribeMaxElapsed time.Duration `conf:"resubscribe_max_elapsed" yaml:"resubscribe_max_elapsed" json:"resubscribe_max_elapsed"`
}

type handle struct {
	id HandleID
	cb Callback
}

type topicEntry struct {
	topic   string
	handles []handle

	// sub is nil while the topic is lost.
	sub store.Subscription
	gen uint64

	resubscribing bool
}

// Manager owns the topic registry. Every registry mutation and the store
// subscribe/unsubscribe call it implies happen under mu, so the number of live
// store subscriptions of a topic is 1 exactly when the topic has handles.
type Manager struct {
	client store.Client
	opts   Options

	mu      sync.Mutex
	topics  map[string]*topicEntry
	handles map[HandleID]string
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(client store.Client, opts Options) *Manager {
	if opts.ResubscribeInitialInterval <= 0 {
		opts.ResubscribeInitialInterval = 500 * time.Millisecond
	}

	if opts.ResubscribeMaxInterval <= 0 {
		opts.ResubscribeMaxInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		client:  client,
		opts:    opts,
		topics:  make(map[string]*topicEntry),
		handles: make(map[HandleID]string),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds cb to topic, opening the store subscription when cb is the first
// handle or the topic's subscription was lost. A failed subscribe registers nothing.
func (m *Manager) Register(ctx context.Context, topic string, cb Callback) (HandleID, error) {
	if topic == "" {
		return "", &store.SubscriptionError{Err: errors.New("topic is required")}
	}

	if cb == nil {
		return "", &store.SubscriptionError{Topic: topic, Err: errors.New("callback is required")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", &store.SubscriptionError{Topic: topic, Err: ErrClosed}
	}

	entry, ok := m.topics[topic]
	if !ok {
		entry = &topicEntry{topic: topic}
	}

	if entry.sub == nil {
		if err := m.subscribeLocked(ctx, entry); err != nil {
			return "", err
		}
	}

	m.topics[topic] = entry

	id := HandleID(uuid.NewString())
	entry.handles = append(entry.handles, handle{id: id, cb: cb})
	m.handles[id] = topic

	log.Debug(ctx, "subscription handle registered",
		log.String("topic", topic),
		log.String("handle", string(id)),
		log.Int("handles", len(entry.handles)))

	return id, nil
}

// Unregister removes the handle. Unknown or already removed handles are ignored.
// Removing the last handle of a topic tears down its store subscription.
func (m *Manager) Unregister(ctx context.Context, id HandleID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	topic, ok := m.handles[id]
	if !ok {
		return
	}

	delete(m.handles, id)

	entry := m.topics[topic]
	entry.handles = slices.DeleteFunc(entry.handles, func(h handle) bool { return h.id == id })

	if len(entry.handles) > 0 {
		return
	}

	delete(m.topics, topic)
	m.unsubscribeLocked(ctx, entry)

	log.Debug(ctx, "subscription topic released", log.String("topic", topic))
}

// Topics lists topics that currently have at least one handle.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	topics := lo.Keys(m.topics)
	slices.Sort(topics)

	return topics
}

// Handles returns the number of handles registered for topic.
func (m *Manager) Handles(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.topics[topic]; ok {
		return len(entry.handles)
	}

	return 0
}

// Lost reports whether topic has handles but no live store subscription.
func (m *Manager) Lost(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.topics[topic]

	return ok && entry.sub == nil
}

// Close unregisters every handle and stops background resubscribes.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	m.closed = true

	for topic, entry := range m.topics {
		delete(m.topics, topic)
		m.unsubscribeLocked(ctx, entry)
	}

	clear(m.handles)
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) subscribeLocked(ctx context.Context, entry *topicEntry) error {
	entry.gen++
	gen := entry.gen

	sub, err := m.client.Subscribe(ctx, entry.topic, func(ctx context.Context, ev store.ChangeEvent) {
		m.dispatch(ctx, entry, gen, ev)
	})
	if err != nil {
		var subErr *store.SubscriptionError
		if errors.As(err, &subErr) {
			return err
		}

		return &store.SubscriptionError{Topic: entry.topic, Err: err}
	}

	entry.sub = sub
	metrics.AddSubscriptions(ctx, entry.topic, 1)

	m.wg.Add(1)

	go m.watchLoss(entry, gen, sub)

	return nil
}

func (m *Manager) unsubscribeLocked(ctx context.Context, entry *topicEntry) {
	sub := entry.sub
	entry.sub = nil
	entry.gen++

	if sub == nil {
		return
	}

	metrics.AddSubscriptions(ctx, entry.topic, -1)

	if err := m.client.Unsubscribe(ctx, sub); err != nil {
		log.Warn(ctx, "failed to unsubscribe topic",
			log.String("topic", entry.topic),
			log.Cause(err))
	}
}

// currentLocked reports whether events of generation gen should still be delivered.
func (m *Manager) currentLocked(entry *topicEntry, gen uint64) bool {
	return m.topics[entry.topic] == entry && entry.gen == gen && entry.sub != nil
}

func (m *Manager) dispatch(ctx context.Context, entry *topicEntry, gen uint64, ev store.ChangeEvent) {
	m.mu.Lock()

	if !m.currentLocked(entry, gen) {
		m.mu.Unlock()
		return
	}

	handles := slices.Clone(entry.handles)
	m.mu.Unlock()

	for _, h := range handles {
		m.invoke(ctx, entry.topic, h, ev)
	}
}

func (m *Manager) invoke(ctx context.Context, topic string, h handle, ev store.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "subscription callback panicked",
				log.String("topic", topic),
				log.String("handle", string(h.id)),
				log.Any("panic", r),
				log.String("stack", string(debug.Stack())))
		}
	}()

	h.cb(ctx, ev)
}

func (m *Manager) watchLoss(entry *topicEntry, gen uint64, sub store.Subscription) {
	defer m.wg.Done()

	select {
	case <-sub.Done():
	case <-m.ctx.Done():
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.currentLocked(entry, gen) || entry.sub != sub {
		return
	}

	entry.sub = nil
	metrics.AddSubscriptions(m.ctx, entry.topic, -1)

	log.Warn(m.ctx, "subscription lost, resubscribing",
		log.String("topic", entry.topic),
		log.Int("handles", len(entry.handles)),
		log.Cause(sub.Err()))

	if entry.resubscribing || m.closed {
		return
	}

	entry.resubscribing = true

	m.wg.Add(1)

	go m.resubscribe(entry)
}
