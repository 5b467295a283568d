// Package collections binds the dashboard tables to live caches.
package collections

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/objects"
	"github.com/looplj/lifeline/internal/store"
)

const (
	TopicEmergencyAlerts    = "emergency_alerts"
	TopicEvacuationRoutes   = "evacuation_routes"
	TopicIncidentReports    = "incident_reports"
	TopicEmergencyResources = "emergency_resources"
)

var (
	AlertsQuery    = store.Query{Topic: TopicEmergencyAlerts, OrderBy: store.FieldCreatedAt, Descending: true}
	RoutesQuery    = store.Query{Topic: TopicEvacuationRoutes, OrderBy: "name"}
	ReportsQuery   = store.Query{Topic: TopicIncidentReports, OrderBy: store.FieldCreatedAt, Descending: true}
	ResourcesQuery = store.Query{Topic: TopicEmergencyResources, OrderBy: "name"}
)

type validator interface {
	Validate() error
}

// Definition describes one collection: its ordered query, how to open a typed
// cache for it and how inbound writes are checked.
type Definition struct {
	Name  string
	Query store.Query

	open func(ctx context.Context, reg live.Registrar, client store.Client, opts Options, scoped bool) (live.Collection, error)

	validateRecord func(payload json.RawMessage) error

	// enumFields are checked on partial updates.
	enumFields map[string]func(string) bool
}

// Open creates a typed cache for the collection. A scoped cache is disposed when ctx is done.
func (d Definition) Open(ctx context.Context, reg live.Registrar, client store.Client, opts Options, scoped bool) (live.Collection, error) {
	return d.open(ctx, reg, client, opts, scoped)
}

// ValidateMutation checks a write before it reaches the store.
func (d Definition) ValidateMutation(m store.Mutation) error {
	switch m.Op {
	case store.OpInsert, store.OpUpsert:
		return d.validateRecord(m.Payload)
	case store.OpUpdate:
		return d.validatePatch(m.Payload)
	default:
		return nil
	}
}

func (d Definition) validatePatch(payload json.RawMessage) error {
	if len(d.enumFields) == 0 || len(payload) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return &objects.ValidationError{Field: "payload", Reason: "must be a JSON object"}
	}

	for name, valid := range d.enumFields {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			continue
		}

		var v string
		if err := json.Unmarshal(raw, &v); err != nil || !valid(v) {
			return &objects.ValidationError{Field: name, Reason: fmt.Sprintf("unknown value %s", raw)}
		}
	}

	return nil
}

func define[T validator](q store.Query, enumFields map[string]func(string) bool) Definition {
	return Definition{
		Name:  q.Topic,
		Query: q,
		open: func(ctx context.Context, reg live.Registrar, client store.Client, opts Options, scoped bool) (live.Collection, error) {
			cacheOpts := live.Options[T]{
				Name:           q.Topic,
				RefreshTimeout: opts.RefreshTimeout,
			}

			var (
				c   *live.Cache[T]
				err error
			)

			if scoped {
				c, err = live.UseLiveCollection(ctx, reg, q.Topic, QueryFunc[T](client, q), cacheOpts)
			} else {
				c, err = live.New(ctx, reg, q.Topic, QueryFunc[T](client, q), cacheOpts)
			}

			if err != nil {
				return nil, err
			}

			return live.Erase(c), nil
		},
		validateRecord: func(payload json.RawMessage) error {
			var v T
			if err := json.Unmarshal(payload, &v); err != nil {
				return &objects.ValidationError{Field: "payload", Reason: err.Error()}
			}

			return v.Validate()
		},
		enumFields: enumFields,
	}
}

var definitions = []Definition{
	define[objects.EmergencyAlert](AlertsQuery, map[string]func(string) bool{
		"type":     func(s string) bool { return objects.IncidentType(s).Valid() },
		"severity": func(s string) bool { return objects.Severity(s).Valid() },
		"status":   func(s string) bool { return objects.AlertStatus(s).Valid() },
	}),
	define[objects.EvacuationRoute](RoutesQuery, nil),
	define[objects.IncidentReport](ReportsQuery, map[string]func(string) bool{
		"type":     func(s string) bool { return objects.IncidentType(s).Valid() },
		"severity": func(s string) bool { return objects.Severity(s).Valid() },
		"status":   func(s string) bool { return objects.AlertStatus(s).Valid() },
	}),
	define[objects.EmergencyResource](ResourcesQuery, map[string]func(string) bool{
		"type": func(s string) bool { return objects.ResourceType(s).Valid() },
	}),
}

// Definitions returns every collection in display order.
func Definitions() []Definition {
	return definitions
}

// Lookup finds a collection by name.
func Lookup(name string) (Definition, bool) {
	for _, d := range definitions {
		if d.Name == name {
			return d, true
		}
	}

	return Definition{}, false
}
