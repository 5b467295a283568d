package metrics

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var global atomic.Pointer[Instruments]

// Instruments are the meters of the sync layer.
type Instruments struct {
	refreshes       metric.Int64Counter
	refreshDuration metric.Float64Histogram
	subscriptions   metric.Int64UpDownCounter
	resubscribes    metric.Int64Counter
	httpRequests    metric.Int64Counter
	httpDuration    metric.Float64Histogram
}

func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		ins Instruments
		err error
	)

	ins.refreshes, err = meter.Int64Counter("lifeline.collection.refreshes",
		metric.WithDescription("Collection fetches by outcome."))
	if err != nil {
		return nil, err
	}

	ins.refreshDuration, err = meter.Float64Histogram("lifeline.collection.refresh.duration",
		metric.WithDescription("Duration of collection fetches."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	ins.subscriptions, err = meter.Int64UpDownCounter("lifeline.store.subscriptions",
		metric.WithDescription("Live store subscriptions."))
	if err != nil {
		return nil, err
	}

	ins.resubscribes, err = meter.Int64Counter("lifeline.store.resubscribes",
		metric.WithDescription("Resubscriptions after a lost store subscription."))
	if err != nil {
		return nil, err
	}

	ins.httpRequests, err = meter.Int64Counter("lifeline.http.requests",
		metric.WithDescription("HTTP requests by route and status."))
	if err != nil {
		return nil, err
	}

	ins.httpDuration, err = meter.Float64Histogram("lifeline.http.duration",
		metric.WithDescription("Duration of HTTP requests."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &ins, nil
}

func (ins *Instruments) RecordRefresh(ctx context.Context, topic string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	attrs := metric.WithAttributes(attribute.String("topic", topic), attribute.String("outcome", outcome))
	ins.refreshes.Add(ctx, 1, attrs)
	ins.refreshDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (ins *Instruments) AddSubscriptions(ctx context.Context, topic string, delta int64) {
	ins.subscriptions.Add(ctx, delta, metric.WithAttributes(attribute.String("topic", topic)))
}

func (ins *Instruments) RecordResubscribe(ctx context.Context, topic string) {
	ins.resubscribes.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (ins *Instruments) RecordHTTPRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	ins.httpRequests.Add(ctx, 1, attrs)
	ins.httpDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// The package level recorders are no-ops until SetupMetrics runs.

func RecordRefresh(ctx context.Context, topic string, err error, elapsed time.Duration) {
	if ins := global.Load(); ins != nil {
		ins.RecordRefresh(ctx, topic, err, elapsed)
	}
}

func AddSubscriptions(ctx context.Context, topic string, delta int64) {
	if ins := global.Load(); ins != nil {
		ins.AddSubscriptions(ctx, topic, delta)
	}
}

func RecordResubscribe(ctx context.Context, topic string) {
	if ins := global.Load(); ins != nil {
		ins.RecordResubscribe(ctx, topic)
	}
}

func RecordHTTPRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if ins := global.Load(); ins != nil {
		ins.RecordHTTPRequest(ctx, method, route, status, elapsed)
	}
}
