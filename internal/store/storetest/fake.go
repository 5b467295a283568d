// Package storetest provides an in-memory store.Client for tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/looplj/lifeline/internal/pkg/xtime"
	"github.com/looplj/lifeline/internal/store"
)

// QueryHook runs before a query is answered. A non-nil error fails the query.
// Hooks may block, for example until a test releases a gate or ctx is done.
type QueryHook func(ctx context.Context, q store.Query) error

// Fake is a store.Client that keeps records in memory and counts every interaction.
// Records are returned in insertion order; Emit delivers change events synchronously.
type Fake struct {
	mu sync.Mutex

	records map[string][]store.Record
	subs    map[string][]*Subscription

	queryCalls     map[string]int
	subscribeCalls map[string]int
	maxLive        map[string]int

	queryHook    QueryHook
	writeErr     error
	subscribeErr error
}

var _ store.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		records:        make(map[string][]store.Record),
		subs:           make(map[string][]*Subscription),
		queryCalls:     make(map[string]int),
		subscribeCalls: make(map[string]int),
		maxLive:        make(map[string]int),
	}
}

// Seed appends records built from raw JSON payloads without emitting events.
func (f *Fake) Seed(topic string, payloads ...string) []store.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]store.Record, 0, len(payloads))

	for _, p := range payloads {
		rec := store.Record{
			ID:        uuid.NewString(),
			Topic:     topic,
			Payload:   json.RawMessage(p),
			CreatedAt: xtime.UTCNow(),
		}
		rec.UpdatedAt = rec.CreatedAt

		f.records[topic] = append(f.records[topic], rec)
		out = append(out, rec)
	}

	return out
}

func (f *Fake) SetQueryHook(h QueryHook) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queryHook = h
}

// FailWrites makes every following Write fail with err until cleared with nil.
func (f *Fake) FailWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writeErr = err
}

// FailSubscribe makes every following Subscribe fail with err until cleared with nil.
func (f *Fake) FailSubscribe(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribeErr = err
}

func (f *Fake) Query(ctx context.Context, q store.Query) ([]store.Record, error) {
	f.mu.Lock()
	f.queryCalls[q.Topic]++
	hook := f.queryHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, q); err != nil {
			return nil, &store.QueryError{Topic: q.Topic, Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &store.QueryError{Topic: q.Topic, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := slices.Clone(f.records[q.Topic])
	if out == nil {
		out = []store.Record{}
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	return out, nil
}

func (f *Fake) Write(ctx context.Context, m store.Mutation) (store.Record, error) {
	f.mu.Lock()

	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()

		return store.Record{}, &store.WriteError{Topic: m.Topic, Op: m.Op, Err: err}
	}

	rec, err := f.applyLocked(m)
	f.mu.Unlock()

	if err != nil {
		return store.Record{}, &store.WriteError{Topic: m.Topic, Op: m.Op, Err: err}
	}

	f.Emit(ctx, store.ChangeEvent{Topic: m.Topic, Op: m.Op, ID: rec.ID, At: xtime.UTCNow()})

	return rec, nil
}

func (f *Fake) applyLocked(m store.Mutation) (store.Record, error) {
	now := xtime.UTCNow()
	recs := f.records[m.Topic]

	idx := slices.IndexFunc(recs, func(r store.Record) bool { return m.ID != "" && r.ID == m.ID })

	switch m.Op {
	case store.OpInsert:
		if idx >= 0 {
			return store.Record{}, fmt.Errorf("duplicate id %s", m.ID)
		}

		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}

		rec := store.Record{ID: id, Topic: m.Topic, Payload: m.Payload, CreatedAt: now, UpdatedAt: now}
		f.records[m.Topic] = append(recs, rec)

		return rec, nil
	case store.OpUpdate, store.OpUpsert:
		if idx < 0 {
			if m.Op == store.OpUpdate || m.ID == "" {
				return store.Record{}, store.ErrNotFound
			}

			rec := store.Record{ID: m.ID, Topic: m.Topic, Payload: m.Payload, CreatedAt: now, UpdatedAt: now}
			f.records[m.Topic] = append(recs, rec)

			return rec, nil
		}

		recs[idx].Payload = m.Payload
		recs[idx].UpdatedAt = now

		return recs[idx], nil
	case store.OpDelete:
		if idx < 0 {
			return store.Record{}, store.ErrNotFound
		}

		rec := recs[idx]
		f.records[m.Topic] = slices.Delete(recs, idx, idx+1)

		return rec, nil
	default:
		return store.Record{}, store.ErrInvalidMutation
	}
}

func (f *Fake) Subscribe(_ context.Context, topic string, onChange store.ChangeFunc) (store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribeCalls[topic]++

	if f.subscribeErr != nil {
		return nil, &store.SubscriptionError{Topic: topic, Err: f.subscribeErr}
	}

	sub := &Subscription{
		topic:    topic,
		onChange: onChange,
		done:     make(chan struct{}),
	}

	f.subs[topic] = append(f.subs[topic], sub)
	f.maxLive[topic] = max(f.maxLive[topic], len(f.subs[topic]))

	return sub, nil
}

func (f *Fake) Unsubscribe(_ context.Context, sub store.Subscription) error {
	s, ok := sub.(*Subscription)
	if !ok {
		return errors.New("storetest: unknown subscription")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeLocked(s)
	s.finish(nil)

	return nil
}

// Emit delivers ev to every live subscription of its topic.
func (f *Fake) Emit(ctx context.Context, ev store.ChangeEvent) {
	f.mu.Lock()
	subs := slices.Clone(f.subs[ev.Topic])
	f.mu.Unlock()

	for _, s := range subs {
		s.onChange(ctx, ev)
	}
}

// Drop simulates the transport losing every live subscription of topic.
func (f *Fake) Drop(topic string) {
	f.mu.Lock()
	subs := f.subs[topic]
	delete(f.subs, topic)
	f.mu.Unlock()

	for _, s := range subs {
		s.finish(store.ErrSubscriptionLost)
	}
}

// LiveSubscriptions is the number of store subscriptions currently held for topic.
func (f *Fake) LiveSubscriptions(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.subs[topic])
}

// MaxLiveSubscriptions is the highest LiveSubscriptions value ever observed for topic.
func (f *Fake) MaxLiveSubscriptions(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.maxLive[topic]
}

func (f *Fake) QueryCalls(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.queryCalls[topic]
}

func (f *Fake) SubscribeCalls(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.subscribeCalls[topic]
}

func (f *Fake) removeLocked(s *Subscription) {
	f.subs[s.topic] = slices.DeleteFunc(f.subs[s.topic], func(x *Subscription) bool { return x == s })
	if len(f.subs[s.topic]) == 0 {
		delete(f.subs, s.topic)
	}
}

// Subscription is the token handed out by Fake.
type Subscription struct {
	topic    string
	onChange store.ChangeFunc

	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (s *Subscription) Topic() string {
	return s.topic
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		close(s.done)
	})
}

// Gate blocks queries until Release is called. Use Hook as the fake's QueryHook.
type Gate struct {
	ch      chan struct{}
	once    sync.Once
	entered chan struct{}
}

func NewGate() *Gate {
	return &Gate{
		ch:      make(chan struct{}),
		entered: make(chan struct{}, 64),
	}
}

func (g *Gate) Hook(ctx context.Context, _ store.Query) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}

	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entered is signalled every time a query reaches the gate.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

func (g *Gate) Release() {
	g.once.Do(func() { close(g.ch) })
}
