package collections

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/objects"
	"github.com/looplj/lifeline/internal/pkg/db"
	"github.com/looplj/lifeline/internal/pkg/watcher"
	"github.com/looplj/lifeline/internal/store"
	"github.com/looplj/lifeline/internal/store/storetest"
	"github.com/looplj/lifeline/internal/subscription"
)

type env struct {
	store *store.SQLStore
	mgr   *subscription.Manager
}

func newEnv(t *testing.T) env {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	topics, err := watcher.NewTopics[store.ChangeEvent](watcher.Config{Mode: watcher.ModeMemory, Buffer: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = topics.Close() })

	s := store.NewSQLStore(sqlDB, db.DialectSQLite, topics)
	require.NoError(t, s.Migrate(context.Background()))

	mgr := subscription.NewManager(s, subscription.Options{})
	t.Cleanup(func() { mgr.Close(context.Background()) })

	return env{store: s, mgr: mgr}
}

func (e env) insert(t *testing.T, topic, payload string) store.Record {
	t.Helper()

	rec, err := e.store.Write(context.Background(), store.Mutation{Topic: topic, Op: store.OpInsert, Payload: json.RawMessage(payload)})
	require.NoError(t, err)

	return rec
}

func waitReady(t *testing.T, c live.Collection) {
	t.Helper()

	require.Eventually(t, func() bool {
		return c.View().Status == live.StatusReady
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDefinitions(t *testing.T) {
	names := lo.Map(Definitions(), func(d Definition, _ int) string { return d.Name })
	assert.Equal(t, []string{TopicEmergencyAlerts, TopicEvacuationRoutes, TopicIncidentReports, TopicEmergencyResources}, names)

	d, ok := Lookup(TopicEvacuationRoutes)
	require.True(t, ok)
	assert.Equal(t, "name", d.Query.OrderBy)
	assert.False(t, d.Query.Descending)

	d, ok = Lookup(TopicEmergencyAlerts)
	require.True(t, ok)
	assert.Equal(t, store.FieldCreatedAt, d.Query.OrderBy)
	assert.True(t, d.Query.Descending)

	_, ok = Lookup("profiles")
	assert.False(t, ok)
}

func TestDefinition_ValidateMutation(t *testing.T) {
	alerts, _ := Lookup(TopicEmergencyAlerts)

	err := alerts.ValidateMutation(store.Mutation{
		Op:      store.OpInsert,
		Payload: json.RawMessage(`{"title":"t","description":"d","location":"l","type":"fire","severity":"extreme"}`),
	})

	var vErr *objects.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "severity", vErr.Field)

	require.NoError(t, alerts.ValidateMutation(store.Mutation{Op: store.OpUpdate, Payload: json.RawMessage(`{"status":"resolved"}`)}))
	require.NoError(t, alerts.ValidateMutation(store.Mutation{Op: store.OpUpdate, Payload: json.RawMessage(`{"status":null}`)}))
	require.Error(t, alerts.ValidateMutation(store.Mutation{Op: store.OpUpdate, Payload: json.RawMessage(`{"status":"closed"}`)}))
	require.Error(t, alerts.ValidateMutation(store.Mutation{Op: store.OpUpdate, Payload: json.RawMessage(`{"type":3}`)}))
	require.NoError(t, alerts.ValidateMutation(store.Mutation{Op: store.OpDelete}))

	routes, _ := Lookup(TopicEvacuationRoutes)
	require.NoError(t, routes.ValidateMutation(store.Mutation{Op: store.OpUpdate, Payload: json.RawMessage(`{"current_status":"closed"}`)}))
}

func TestQueryFunc(t *testing.T) {
	e := newEnv(t)

	e.insert(t, TopicEvacuationRoutes, `{"name":"Route B","from_location":"x","to_location":"y"}`)
	e.insert(t, TopicEvacuationRoutes, `{"name":"Route A","from_location":"x","to_location":"y","distance_km":3.5}`)

	routes, err := QueryFunc[objects.EvacuationRoute](e.store, RoutesQuery)(context.Background())
	require.NoError(t, err)
	require.Len(t, routes, 2)

	assert.Equal(t, "Route A", routes[0].Name)
	assert.Equal(t, "3.5", routes[0].DistanceKM.Decimal.String())
	assert.NotEmpty(t, routes[0].ID)
	assert.False(t, routes[0].CreatedAt.IsZero())
	assert.Equal(t, "Route B", routes[1].Name)

	t.Run("decode failure is a query error", func(t *testing.T) {
		e.insert(t, TopicEvacuationRoutes, `{"name":"Broken","capacity":"lots"}`)

		_, err := QueryFunc[objects.EvacuationRoute](e.store, RoutesQuery)(context.Background())

		var queryErr *store.QueryError
		require.ErrorAs(t, err, &queryErr)
		assert.Equal(t, TopicEvacuationRoutes, queryErr.Topic)
	})
}

func TestTypedConstructors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.insert(t, TopicEmergencyResources, `{"name":"Shelter B","type":"shelter","address":"2 B St"}`)
	e.insert(t, TopicEmergencyResources, `{"name":"Hospital A","type":"hospital","address":"1 A St"}`)

	resources, err := Resources(ctx, e.mgr, e.store, live.Options[objects.EmergencyResource]{})
	require.NoError(t, err)

	defer resources.Dispose()

	require.Eventually(t, func() bool { return resources.Status() == live.StatusReady }, 2*time.Second, 5*time.Millisecond)

	names := lo.Map(resources.Snapshot(), func(r objects.EmergencyResource, _ int) string { return r.Name })
	assert.Equal(t, []string{"Hospital A", "Shelter B"}, names)

	alerts, err := Alerts(ctx, e.mgr, e.store, live.Options[objects.EmergencyAlert]{})
	require.NoError(t, err)
	alerts.Dispose()

	routes, err := EvacuationRoutes(ctx, e.mgr, e.store, live.Options[objects.EvacuationRoute]{})
	require.NoError(t, err)
	routes.Dispose()

	reports, err := IncidentReports(ctx, e.mgr, e.store, live.Options[objects.IncidentReport]{})
	require.NoError(t, err)
	reports.Dispose()

	assert.Equal(t, []string{TopicEmergencyResources}, e.mgr.Topics())
}

func TestRegistry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	r, err := NewRegistry(ctx, e.mgr, e.store, Options{RefreshTimeout: time.Second})
	require.NoError(t, err)

	defer r.Close()

	assert.Equal(t, []string{TopicEmergencyAlerts, TopicEvacuationRoutes, TopicIncidentReports, TopicEmergencyResources}, r.Names())
	assert.ElementsMatch(t, r.Names(), e.mgr.Topics())

	alerts, err := r.Get(TopicEmergencyAlerts)
	require.NoError(t, err)
	waitReady(t, alerts)

	t.Run("write refreshes the shared cache", func(t *testing.T) {
		first, err := r.Write(ctx, store.Mutation{
			Topic:   TopicEmergencyAlerts,
			Op:      store.OpInsert,
			Payload: json.RawMessage(`{"title":"Heat","description":"d","location":"l","type":"weather","severity":"medium"}`),
		})
		require.NoError(t, err)

		// created_at has millisecond resolution
		time.Sleep(5 * time.Millisecond)

		second, err := r.Write(ctx, store.Mutation{
			Topic:   TopicEmergencyAlerts,
			Op:      store.OpInsert,
			Payload: json.RawMessage(`{"title":"Fire","description":"d","location":"l","type":"fire","severity":"critical"}`),
		})
		require.NoError(t, err)

		// a notification refresh of the first write may have been joined, so wait for the second one
		var data []objects.EmergencyAlert

		require.Eventually(t, func() bool {
			data, _ = alerts.View().Data.([]objects.EmergencyAlert)
			return len(data) == 2
		}, 2*time.Second, 5*time.Millisecond)

		// newest first
		assert.Equal(t, second.ID, data[0].ID)
		assert.Equal(t, first.ID, data[1].ID)
	})

	t.Run("invalid write is rejected before the store", func(t *testing.T) {
		_, err := r.Write(ctx, store.Mutation{
			Topic:   TopicEmergencyAlerts,
			Op:      store.OpInsert,
			Payload: json.RawMessage(`{"title":"x","description":"d","location":"l","type":"fire","severity":"huge"}`),
		})

		var writeErr *store.WriteError
		require.ErrorAs(t, err, &writeErr)

		var vErr *objects.ValidationError
		require.ErrorAs(t, err, &vErr)

		records, err := e.store.Query(ctx, AlertsQuery)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("unknown collection", func(t *testing.T) {
		_, err := r.Write(ctx, store.Mutation{Topic: "profiles", Op: store.OpInsert})
		require.ErrorIs(t, err, ErrUnknownCollection)

		_, err = r.Get("profiles")
		require.ErrorIs(t, err, ErrUnknownCollection)

		_, err = r.Bind(ctx, "profiles")
		require.ErrorIs(t, err, ErrUnknownCollection)
	})

	t.Run("create incident report", func(t *testing.T) {
		reports, err := r.Get(TopicIncidentReports)
		require.NoError(t, err)
		waitReady(t, reports)

		report, err := r.CreateIncidentReport(ctx, objects.NewIncidentReport{
			Type:        objects.IncidentTypeFlood,
			Severity:    objects.SeverityHigh,
			Location:    "River Rd",
			Description: "Road under water",
			IsAnonymous: true,
		})
		require.NoError(t, err)

		assert.NotEmpty(t, report.ID)
		assert.Equal(t, objects.AlertStatusActive, report.Status)
		assert.False(t, report.Verified)
		assert.False(t, report.CreatedAt.IsZero())

		data, ok := reports.View().Data.([]objects.IncidentReport)
		require.True(t, ok)
		require.Len(t, data, 1)
		assert.Equal(t, report.ID, data[0].ID)
		assert.Equal(t, objects.AlertStatusActive, data[0].Status)

		_, err = r.CreateIncidentReport(ctx, objects.NewIncidentReport{Type: "tornado"})

		var vErr *objects.ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("bind is scoped to the consumer", func(t *testing.T) {
		bindCtx, cancel := context.WithCancel(ctx)

		c, err := r.Bind(bindCtx, TopicEvacuationRoutes)
		require.NoError(t, err)
		waitReady(t, c)

		assert.Equal(t, 2, e.mgr.Handles(TopicEvacuationRoutes))

		cancel()

		require.Eventually(t, func() bool {
			return e.mgr.Handles(TopicEvacuationRoutes) == 1
		}, time.Second, 5*time.Millisecond)
	})

	r.Close()
	assert.Empty(t, e.mgr.Topics())
}

func TestNewRegistry_SubscribeFailure(t *testing.T) {
	fake := storetest.New()
	mgr := subscription.NewManager(fake, subscription.Options{})

	defer mgr.Close(context.Background())

	fake.FailSubscribe(errors.New("offline"))

	_, err := NewRegistry(context.Background(), mgr, fake, Options{})

	var subErr *store.SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Empty(t, mgr.Topics())
}

func TestCreateIncidentReport_WriteFailure(t *testing.T) {
	fake := storetest.New()
	fake.FailWrites(errors.New("read-only"))

	owner := &refreshCounter{}

	_, err := CreateIncidentReport(context.Background(), fake, objects.NewIncidentReport{
		Type:        objects.IncidentTypeFire,
		Severity:    objects.SeverityLow,
		Location:    "x",
		Description: "y",
	}, owner)

	var writeErr *store.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Zero(t, owner.n)
}

type refreshCounter struct {
	n int
}

func (r *refreshCounter) Refresh(context.Context) error {
	r.n++
	return nil
}
