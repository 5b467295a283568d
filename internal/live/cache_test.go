package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looplj/lifeline/internal/store"
	"github.com/looplj/lifeline/internal/store/storetest"
	"github.com/looplj/lifeline/internal/subscription"
)

type alert struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
}

func alertsQuery(client store.Client) QueryFunc[alert] {
	return func(ctx context.Context) ([]alert, error) {
		records, err := client.Query(ctx, store.Query{Topic: "alerts"})
		if err != nil {
			return nil, err
		}

		out := make([]alert, 0, len(records))

		for _, rec := range records {
			var a alert
			if err := json.Unmarshal(rec.Payload, &a); err != nil {
				return nil, err
			}

			out = append(out, a)
		}

		return out, nil
	}
}

func newManager(t *testing.T, client store.Client) *subscription.Manager {
	t.Helper()

	m := subscription.NewManager(client, subscription.Options{})
	t.Cleanup(func() { m.Close(context.Background()) })

	return m
}

func waitStatus(t *testing.T, c interface{ Status() Status }, want Status) {
	t.Helper()

	require.Eventually(t, func() bool {
		return c.Status() == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCache_LoadingThenReady(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	fake.Seed("alerts", `{"id":"a1","severity":"critical"}`)

	gate := storetest.NewGate()
	fake.SetQueryHook(gate.Hook)

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	defer c.Dispose()

	current, states, stop := c.Watch()
	defer stop()

	assert.Equal(t, StatusLoading, current.Status)
	assert.Nil(t, current.Snapshot)

	gate.Release()

	select {
	case state := <-states:
		require.Equal(t, StatusReady, state.Status)
		assert.Empty(t, cmp.Diff([]alert{{ID: "a1", Severity: "critical"}}, state.Snapshot))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ready state")
	}

	assert.Equal(t, StatusReady, c.Status())
	assert.NoError(t, c.Err())
}

func TestCache_ConcurrentRefreshCoalesces(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	fake.Seed("alerts", `{"id":"a1","severity":"low"}`)

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	defer c.Dispose()

	waitStatus(t, c, StatusReady)

	before := fake.QueryCalls("alerts")

	gate := storetest.NewGate()
	fake.SetQueryHook(gate.Hook)

	var (
		wg      sync.WaitGroup
		results [5]error
	)

	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i] = c.Refresh(ctx)
		}()
	}

	select {
	case <-gate.Entered():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for fetch")
	}

	// give the other callers time to join the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatusLoading, c.Status())

	gate.Release()
	wg.Wait()

	for _, err := range results {
		require.NoError(t, err)
	}

	assert.Equal(t, before+1, fake.QueryCalls("alerts"))
	assert.Equal(t, StatusReady, c.Status())
	assert.Len(t, c.Snapshot(), 1)
}

func TestCache_DisposeDuringFetch(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	mgr := newManager(t, fake)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	var calls atomic.Int32

	queryFn := func(context.Context) ([]alert, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release

		// ignores cancellation and resolves late with data
		return []alert{{ID: "late"}}, nil
	}

	c, err := New(ctx, mgr, "alerts", queryFn, Options[alert]{})
	require.NoError(t, err)

	<-entered

	before := c.State()

	c.Dispose()
	assert.Equal(t, 0, mgr.Handles("alerts"))
	assert.Equal(t, 0, fake.LiveSubscriptions("alerts"))

	close(release)
	time.Sleep(50 * time.Millisecond)

	after := c.State()
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.Snapshot, after.Snapshot)
	assert.Nil(t, after.Snapshot)

	// refresh after dispose is a no-op
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, int32(1), calls.Load())

	c.Dispose()
}

func TestCache_ErrorKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	fake.Seed("alerts", `{"id":"a1","severity":"high"}`)

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	defer c.Dispose()

	waitStatus(t, c, StatusReady)

	fake.SetQueryHook(func(context.Context, store.Query) error {
		return errors.New("network unreachable")
	})

	err = c.Refresh(ctx)

	var queryErr *store.QueryError
	require.ErrorAs(t, err, &queryErr)

	state := c.State()
	assert.Equal(t, StatusError, state.Status)
	assert.Contains(t, state.Message(), "network unreachable")
	assert.Equal(t, []alert{{ID: "a1", Severity: "high"}}, state.Snapshot)

	result := c.Result()
	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Error, "network unreachable")

	// the consumer's retry path recovers
	fake.SetQueryHook(nil)
	require.NoError(t, result.Refresh(ctx))
	assert.Equal(t, StatusReady, c.Status())
	assert.NoError(t, c.Err())
}

func TestCache_ChangeEventTriggersRefresh(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	defer c.Dispose()

	waitStatus(t, c, StatusReady)
	assert.Empty(t, c.Snapshot())

	_, err = fake.Write(ctx, store.Mutation{Topic: "alerts", Op: store.OpInsert, Payload: json.RawMessage(`{"id":"a2","severity":"medium"}`)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Snapshot()) == 1 && c.Status() == StatusReady
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCache_ChangeEventFailureBecomesErrorStatus(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	defer c.Dispose()

	waitStatus(t, c, StatusReady)

	fake.SetQueryHook(func(context.Context, store.Query) error {
		return errors.New("timeout")
	})

	require.NotPanics(t, func() {
		fake.Emit(ctx, store.ChangeEvent{Topic: "alerts"})
	})

	waitStatus(t, c, StatusError)
}

func TestCache_OnSwapPanicRecovered(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	fake.Seed("alerts", `{"id":"a1"}`)

	var swaps atomic.Int32

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{
		Name: "alerts_cache",
		OnSwap: func(old, _ []alert) {
			swaps.Add(1)
			panic("swap")
		},
	})
	require.NoError(t, err)

	defer c.Dispose()

	waitStatus(t, c, StatusReady)
	require.NoError(t, c.Refresh(ctx))

	assert.Equal(t, "alerts_cache", c.Name())
	assert.Equal(t, int32(2), swaps.Load())
	assert.Equal(t, StatusReady, c.Status())
}

func TestCache_RefreshDuringSlowOnSwapStartsNewFetch(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	fake.Seed("alerts", `{"id":"a1","severity":"low"}`)

	var (
		first   atomic.Bool
		entered = make(chan struct{})
		release = make(chan struct{})
	)

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{
		OnSwap: func(_, _ []alert) {
			if first.CompareAndSwap(false, true) {
				close(entered)
				<-release
			}
		},
	})
	require.NoError(t, err)

	defer c.Dispose()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("initial fetch never reached onSwap")
	}

	// The initial result is applied while its onSwap is still running.
	require.Equal(t, StatusReady, c.Status())
	require.Equal(t, 1, fake.QueryCalls("alerts"))

	fake.Seed("alerts", `{"id":"a2","severity":"high"}`)

	done := make(chan error, 1)

	go func() {
		done <- c.Refresh(ctx)
	}()

	require.Eventually(t, func() bool {
		return fake.QueryCalls("alerts") == 2
	}, 2*time.Second, 5*time.Millisecond)

	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not return")
	}

	waitStatus(t, c, StatusReady)
	assert.Len(t, c.Snapshot(), 2)
	assert.Equal(t, 2, fake.QueryCalls("alerts"))
}

func TestNew_RegistrationFailure(t *testing.T) {
	fake := storetest.New()
	fake.FailSubscribe(errors.New("offline"))

	c, err := New(context.Background(), newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.Nil(t, c)

	var subErr *store.SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, 0, fake.QueryCalls("alerts"))
}

func TestCache_WatchConflates(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	waitStatus(t, c, StatusReady)

	_, states, stop := c.Watch()
	defer stop()

	fake.Seed("alerts", `{"id":"a1"}`, `{"id":"a2"}`)

	for range 3 {
		require.NoError(t, c.Refresh(ctx))
	}

	var last State[alert]

	require.Eventually(t, func() bool {
		select {
		case last = <-states:
		default:
		}

		return last.Status == StatusReady && len(last.Snapshot) == 2 && len(states) == 0
	}, time.Second, 5*time.Millisecond)

	c.Dispose()

	_, ok := <-states
	assert.False(t, ok)
}

func TestUseLiveCollection(t *testing.T) {
	fake := storetest.New()
	mgr := newManager(t, fake)

	ctx, cancel := context.WithCancel(context.Background())

	c, err := UseLiveCollection(ctx, mgr, "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	waitStatus(t, c, StatusReady)
	assert.Equal(t, 1, mgr.Handles("alerts"))

	cancel()

	require.Eventually(t, func() bool {
		return c.Disposed() && mgr.Handles("alerts") == 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, fake.LiveSubscriptions("alerts"))
}

func TestErase(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()
	fake.Seed("alerts", `{"id":"a1","severity":"critical"}`)

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	coll := Erase(c)
	defer coll.Dispose()

	waitStatus(t, c, StatusReady)

	view := coll.View()
	assert.Equal(t, "alerts", view.Topic)
	assert.Equal(t, StatusReady, view.Status)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `"ready"`, jsonField(t, raw, "status"))
	assert.JSONEq(t, `[{"id":"a1","severity":"critical"}]`, jsonField(t, raw, "data"))

	current, views, stop := coll.Watch()
	defer stop()

	assert.Equal(t, StatusReady, current.Status)

	fake.SetQueryHook(func(context.Context, store.Query) error { return errors.New("down") })
	require.Error(t, coll.Refresh(ctx))

	require.Eventually(t, func() bool {
		select {
		case v := <-views:
			return v.Status == StatusError && v.Error != ""
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func jsonField(t *testing.T, raw []byte, field string) string {
	t.Helper()

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))

	return string(m[field])
}
