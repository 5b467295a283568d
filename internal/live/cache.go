// Package live keeps an in-memory snapshot of one store topic and re-reads it
// whenever the topic changes.
package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/metrics"
	"github.com/looplj/lifeline/internal/pkg/watcher"
	"github.com/looplj/lifeline/internal/pkg/xtime"
	"github.com/looplj/lifeline/internal/store"
	"github.com/looplj/lifeline/internal/subscription"
)

// QueryFunc fetches the complete, ordered contents of a topic.
type QueryFunc[T any] func(ctx context.Context) ([]T, error)

// Registrar is the part of subscription.Manager a cache needs.
type Registrar interface {
	Register(ctx context.Context, topic string, cb subscription.Callback) (subscription.HandleID, error)
	Unregister(ctx context.Context, id subscription.HandleID)
}

type Options[T any] struct {
	// Name is used for logging purposes. Defaults to the topic.
	Name string

	// RefreshTimeout bounds each fetch.
	// Defaults to 30s if not set.
	RefreshTimeout time.Duration

	// OnSwap is called after a successful fetch replaced the snapshot. May be nil.
	//nolint:predeclared // Checked.
	OnSwap func(old, new []T)
}

const refreshKey = "refresh"

// Cache holds the last successful snapshot of a topic together with its status.
//
// Snapshots are replaced wholesale and must be treated as immutable: callers MUST NOT
// mutate slices returned by Snapshot or State.
//
// Concurrent refreshes share one in-flight fetch. After Dispose the cache never
// changes again, even if a fetch started before disposal completes later.
type Cache[T any] struct {
	reg     Registrar
	topic   string
	queryFn QueryFunc[T]

	name           string
	refreshTimeout time.Duration
	//nolint:predeclared // Checked.
	onSwap func(old, new []T)

	mu        sync.RWMutex
	snapshot  []T
	status    Status
	err       error
	updatedAt time.Time
	disposed  bool

	handle subscription.HandleID
	sf     singleflight.Group
	states watcher.Notifier[State[T]]

	ctx         context.Context
	cancel      context.CancelFunc
	disposeOnce sync.Once
}

// New creates a cache in StatusLoading, registers it for change events of topic and
// starts the initial fetch in the background. A registration failure is returned
// and no cache is created.
func New[T any](ctx context.Context, reg Registrar, topic string, queryFn QueryFunc[T], opts Options[T]) (*Cache[T], error) {
	if queryFn == nil {
		return nil, errors.New("live.Cache: queryFn is required")
	}

	timeout := opts.RefreshTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	name := opts.Name
	if name == "" {
		name = topic
	}

	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c := &Cache[T]{
		reg:            reg,
		topic:          topic,
		queryFn:        queryFn,
		name:           name,
		refreshTimeout: timeout,
		onSwap:         opts.OnSwap,
		status:         StatusLoading,
		states:         watcher.NewMemoryWatcher[State[T]](watcher.MemoryWatcherOptions{Buffer: 1, Conflate: true}),
		ctx:            lifetime,
		cancel:         cancel,
	}

	handle, err := reg.Register(ctx, topic, c.onChange)
	if err != nil {
		cancel()
		return nil, err
	}

	c.handle = handle

	log.Debug(ctx, "live cache created", log.String("name", c.name), log.String("topic", topic))

	go c.refreshInBackground("initial")

	return c, nil
}

func (c *Cache[T]) Topic() string {
	return c.topic
}

func (c *Cache[T]) Name() string {
	return c.name
}

// Snapshot returns the last successfully fetched snapshot, nil before the first success.
func (c *Cache[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snapshot
}

func (c *Cache[T]) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.status
}

// Err returns the error of the last failed fetch while the status is StatusError.
func (c *Cache[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.err
}

func (c *Cache[T]) State() State[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.stateLocked()
}

// Watch returns the current state and a channel receiving every later state.
// A slow reader only sees the latest state. The channel is closed by stop or Dispose.
func (c *Cache[T]) Watch() (State[T], <-chan State[T], func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch, stop, err := c.states.Watch(c.ctx)
	if err != nil {
		closed := make(chan State[T])
		close(closed)

		return c.stateLocked(), closed, func() {}
	}

	return c.stateLocked(), ch, stop
}

// Refresh re-runs the query and replaces the snapshot on success. While the fetch
// runs the status is StatusLoading and the previous snapshot stays visible. On
// failure the status becomes StatusError and the snapshot is kept.
//
// Calls made while a fetch is in flight wait for that fetch instead of starting
// another, and observe its result. Refresh on a disposed cache does nothing.
func (c *Cache[T]) Refresh(ctx context.Context) error {
	ch, ok := c.startRefresh()
	if !ok {
		return nil
	}

	select {
	case res := <-ch:
		if res.Shared {
			log.Debug(ctx, "live cache refresh deduplicated via singleflight", log.String("name", c.name))
		}

		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose unregisters the cache from change events and abandons any in-flight
// fetch. The snapshot and status are frozen at their current values.
func (c *Cache[T]) Dispose() {
	c.disposeOnce.Do(func() {
		c.mu.Lock()
		c.disposed = true
		c.mu.Unlock()

		c.reg.Unregister(context.Background(), c.handle)
		c.cancel()

		_ = c.states.Close()

		log.Debug(context.Background(), "live cache disposed", log.String("name", c.name))
	})
}

func (c *Cache[T]) Disposed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.disposed
}

func (c *Cache[T]) onChange(ctx context.Context, ev store.ChangeEvent) {
	log.Debug(ctx, "live cache change event received",
		log.String("name", c.name),
		log.String("op", string(ev.Op)),
		log.String("id", ev.ID))

	go c.refreshInBackground("change")
}

func (c *Cache[T]) refreshInBackground(source string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(c.ctx, "live cache background refresh panicked",
				log.String("name", c.name),
				log.String("source", source),
				log.Any("panic", r))
		}
	}()

	if err := c.Refresh(c.ctx); err != nil && !c.Disposed() {
		log.Warn(c.ctx, "live cache refresh failed",
			log.String("name", c.name),
			log.String("source", source),
			log.Cause(err))
	}
}

// startRefresh moves the cache to StatusLoading and joins the in-flight fetch or
// starts a new one. Both happen under mu, and fetch forgets the call under mu
// before applying its result, so a caller that set StatusLoading always waits for
// a result applied after it. It returns false once disposed.
func (c *Cache[T]) startRefresh() (<-chan singleflight.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return nil, false
	}

	if c.status != StatusLoading {
		c.status = StatusLoading
		c.err = nil
		c.publishLocked()
	}

	return c.sf.DoChan(refreshKey, func() (any, error) {
		return nil, c.fetch()
	}), true
}

func (c *Cache[T]) fetch() error {
	ctx, cancel := context.WithTimeout(c.ctx, c.refreshTimeout)
	defer cancel()

	start := time.Now()
	data, err := c.queryFn(ctx)
	metrics.RecordRefresh(ctx, c.topic, err, time.Since(start))

	c.mu.Lock()
	c.sf.Forget(refreshKey)

	if c.disposed {
		c.mu.Unlock()
		log.Debug(ctx, "live cache dropped fetch result after dispose", log.String("name", c.name))

		return nil
	}

	if err != nil {
		var queryErr *store.QueryError
		if !errors.As(err, &queryErr) {
			err = &store.QueryError{Topic: c.topic, Err: err}
		}

		c.status = StatusError
		c.err = err
		c.publishLocked()
		c.mu.Unlock()

		return err
	}

	old := c.snapshot
	c.snapshot = data
	c.status = StatusReady
	c.err = nil
	c.updatedAt = xtime.UTCNow()
	c.publishLocked()
	c.mu.Unlock()

	if c.onSwap != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error(ctx, "live cache onSwap callback panicked",
						log.String("name", c.name),
						log.Any("panic", r))
				}
			}()

			c.onSwap(old, data)
		}()
	}

	log.Debug(ctx, "live cache refreshed", log.String("name", c.name), log.Int("count", len(data)))

	return nil
}

func (c *Cache[T]) stateLocked() State[T] {
	return State[T]{
		Snapshot:  c.snapshot,
		Status:    c.status,
		Err:       c.err,
		UpdatedAt: c.updatedAt,
	}
}

// publishLocked runs under mu so observers see states in the order they were set.
func (c *Cache[T]) publishLocked() {
	_ = c.states.Notify(context.Background(), c.stateLocked())
}
