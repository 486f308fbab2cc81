package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "buildhive"

// Metrics holds all BuildHive metric instruments. A nil *Metrics is valid
// and records nothing, so callers never need to branch on telemetry being
// configured.
type Metrics struct {
	tasksQueued     metric.Int64Counter
	tasksDispatched metric.Int64Counter
	tasksFinished   metric.Int64Counter
	queueDepth      metric.Int64Gauge
	dispatchSeconds metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.tasksQueued, err = meter.Int64Counter("buildhive.tasks.queued",
		metric.WithDescription("Number of tasks enqueued"))
	if err != nil {
		return nil, err
	}

	m.tasksDispatched, err = meter.Int64Counter("buildhive.tasks.dispatched",
		metric.WithDescription("Number of tasks handed to the lifecycle"))
	if err != nil {
		return nil, err
	}

	m.tasksFinished, err = meter.Int64Counter("buildhive.tasks.finished",
		metric.WithDescription("Number of tasks reaching a terminal state"))
	if err != nil {
		return nil, err
	}

	m.queueDepth, err = meter.Int64Gauge("buildhive.queue.depth",
		metric.WithDescription("Tasks waiting for dispatch"))
	if err != nil {
		return nil, err
	}

	m.dispatchSeconds, err = meter.Float64Histogram("buildhive.dispatch.duration_seconds",
		metric.WithDescription("Wall time from dispatch to terminal state"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// TaskQueued records an enqueue and the resulting queue depth.
func (m *Metrics) TaskQueued(ctx context.Context, depth int) {
	if m == nil {
		return
	}
	m.tasksQueued.Add(ctx, 1)
	m.queueDepth.Record(ctx, int64(depth))
}

// TaskDispatched records a task leaving the queue.
func (m *Metrics) TaskDispatched(ctx context.Context) {
	if m == nil {
		return
	}
	m.tasksDispatched.Add(ctx, 1)
}

// TaskFinished records a terminal state and the dispatch-to-terminal latency.
func (m *Metrics) TaskFinished(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.tasksFinished.Add(ctx, 1, attrs)
	m.dispatchSeconds.Record(ctx, d.Seconds(), attrs)
}
