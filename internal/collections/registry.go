package collections

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/objects"
	"github.com/looplj/lifeline/internal/store"
)

// ErrUnknownCollection is returned for names that are not a dashboard collection.
var ErrUnknownCollection = errors.New("collections: unknown collection")

type Options struct {
	// RefreshTimeout bounds each collection fetch. Defaults to 30s if not set.
	RefreshTimeout time.Duration `conf:"refresh_timeout" yaml:"refresh_timeout" json:"refresh_timeout"`
}

// Registry keeps one long-lived cache per collection and opens per-consumer caches on demand.
type Registry struct {
	reg    live.Registrar
	client store.Client
	opts   Options

	mu     sync.RWMutex
	shared map[string]live.Collection
	closed bool
}

// NewRegistry opens the shared cache of every collection. If any registration fails
// the caches opened so far are disposed and the error is returned.
func NewRegistry(ctx context.Context, reg live.Registrar, client store.Client, opts Options) (*Registry, error) {
	r := &Registry{
		reg:    reg,
		client: client,
		opts:   opts,
		shared: make(map[string]live.Collection, len(definitions)),
	}

	for _, d := range definitions {
		c, err := d.Open(ctx, reg, client, opts, false)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open collection %s: %w", d.Name, err)
		}

		r.shared[d.Name] = c
	}

	log.Info(ctx, "collections registry ready", log.Strings("collections", r.Names()))

	return r, nil
}

// Names lists the collections in display order.
func (r *Registry) Names() []string {
	return lo.Map(definitions, func(d Definition, _ int) string { return d.Name })
}

// Get returns the shared cache of a collection.
func (r *Registry) Get(name string) (live.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.shared[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}

	return c, nil
}

// Bind opens a cache owned by one consumer; it is disposed when ctx is done.
func (r *Registry) Bind(ctx context.Context, name string) (live.Collection, error) {
	d, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}

	return d.Open(ctx, r.reg, r.client, r.opts, true)
}

// Write validates m, applies it and refreshes the shared cache of its collection.
func (r *Registry) Write(ctx context.Context, m store.Mutation) (store.Record, error) {
	d, ok := Lookup(m.Topic)
	if !ok {
		return store.Record{}, fmt.Errorf("%w: %s", ErrUnknownCollection, m.Topic)
	}

	if err := d.ValidateMutation(m); err != nil {
		return store.Record{}, &store.WriteError{Topic: m.Topic, Op: m.Op, Err: err}
	}

	owner, err := r.Get(m.Topic)
	if err != nil {
		return store.Record{}, err
	}

	return live.WriteRecord(ctx, r.client, m, owner)
}

// CreateIncidentReport stores a report and refreshes the shared incident cache.
func (r *Registry) CreateIncidentReport(ctx context.Context, report objects.NewIncidentReport) (objects.IncidentReport, error) {
	owner, err := r.Get(TopicIncidentReports)
	if err != nil {
		return objects.IncidentReport{}, err
	}

	return CreateIncidentReport(ctx, r.client, report, owner)
}

// Close disposes every shared cache.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.closed = true

	for name, c := range r.shared {
		c.Dispose()
		delete(r.shared, name)
	}
}
