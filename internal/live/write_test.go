package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looplj/lifeline/internal/store"
	"github.com/looplj/lifeline/internal/store/storetest"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestPerformWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("success refreshes owner exactly once", func(t *testing.T) {
		owner := &countingRefresher{}

		res, err := PerformWrite(ctx, func(context.Context) (string, error) {
			return "r1", nil
		}, owner)
		require.NoError(t, err)

		assert.Equal(t, "r1", res)
		assert.Equal(t, int32(1), owner.calls.Load())
	})

	t.Run("failure does not refresh", func(t *testing.T) {
		owner := &countingRefresher{}

		_, err := PerformWrite(ctx, func(context.Context) (string, error) {
			return "", errors.New("permission denied")
		}, owner)

		var writeErr *store.WriteError
		require.ErrorAs(t, err, &writeErr)
		assert.Contains(t, err.Error(), "permission denied")
		assert.Equal(t, int32(0), owner.calls.Load())
	})

	t.Run("write error is passed through", func(t *testing.T) {
		orig := &store.WriteError{Topic: "alerts", Op: store.OpInsert, Err: errors.New("dup")}

		_, err := PerformWrite(ctx, func(context.Context) (int, error) {
			return 0, orig
		}, &countingRefresher{})
		require.Same(t, orig, err)
	})

	t.Run("refresh failure does not fail the write", func(t *testing.T) {
		owner := &countingRefresher{err: errors.New("refresh failed")}

		res, err := PerformWrite(ctx, func(context.Context) (int, error) {
			return 7, nil
		}, owner)
		require.NoError(t, err)
		assert.Equal(t, 7, res)
		assert.Equal(t, int32(1), owner.calls.Load())
	})

	t.Run("nil owner", func(t *testing.T) {
		_, err := PerformWrite(ctx, func(context.Context) (int, error) { return 1, nil }, nil)
		require.NoError(t, err)
	})
}

func TestWriteRecord(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	defer c.Dispose()

	waitStatus(t, c, StatusReady)

	before := fake.QueryCalls("alerts")

	rec, err := WriteRecord(ctx, fake, store.Mutation{
		Topic:   "alerts",
		Op:      store.OpInsert,
		Payload: json.RawMessage(`{"id":"a9","severity":"critical"}`),
	}, c)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	// the write-through refresh has completed before WriteRecord returns; the
	// notification emitted by the write may add one more fetch or coalesce into it
	assert.Equal(t, []alert{{ID: "a9", Severity: "critical"}}, c.Snapshot())
	assert.GreaterOrEqual(t, fake.QueryCalls("alerts"), before+1)
	assert.LessOrEqual(t, fake.QueryCalls("alerts"), before+2)

	t.Run("failed write leaves snapshot untouched", func(t *testing.T) {
		fake.FailWrites(errors.New("rejected"))
		defer fake.FailWrites(nil)

		// let the notification-triggered refresh of the previous write settle
		time.Sleep(50 * time.Millisecond)

		calls := fake.QueryCalls("alerts")

		_, err := WriteRecord(ctx, fake, store.Mutation{Topic: "alerts", Op: store.OpInsert}, c)

		var writeErr *store.WriteError
		require.ErrorAs(t, err, &writeErr)
		assert.Equal(t, "alerts", writeErr.Topic)
		assert.Equal(t, calls, fake.QueryCalls("alerts"))
		assert.Len(t, c.Snapshot(), 1)
	})
}

func TestPerformWrite_NotificationRefreshesSeparately(t *testing.T) {
	ctx := context.Background()
	fake := storetest.New()

	c, err := New(ctx, newManager(t, fake), "alerts", alertsQuery(fake), Options[alert]{})
	require.NoError(t, err)

	defer c.Dispose()

	waitStatus(t, c, StatusReady)

	before := fake.QueryCalls("alerts")

	// Seed stores the row without notifying, so the change event can be delivered later.
	rec, err := PerformWrite(ctx, func(context.Context) (store.Record, error) {
		return fake.Seed("alerts", `{"id":"a1","severity":"high"}`)[0], nil
	}, c)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	assert.Equal(t, before+1, fake.QueryCalls("alerts"))
	assert.Equal(t, []alert{{ID: "a1", Severity: "high"}}, c.Snapshot())

	assert.Never(t, func() bool {
		return fake.QueryCalls("alerts") != before+1
	}, 50*time.Millisecond, 5*time.Millisecond)

	fake.Emit(ctx, store.ChangeEvent{Topic: "alerts", Op: store.OpInsert, ID: rec.ID})

	require.Eventually(t, func() bool {
		return fake.QueryCalls("alerts") == before+2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Never(t, func() bool {
		return fake.QueryCalls("alerts") != before+2
	}, 50*time.Millisecond, 5*time.Millisecond)

	waitStatus(t, c, StatusReady)
}
