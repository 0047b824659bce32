package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/reactive/logger"
	"github.com/kbukum/reactive/observability"
)

// Terminal outcomes recorded on spans and metrics.
const (
	OutcomeComplete  = "complete"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Trace wraps every subscription to p in a span named name. The span
// context is passed upstream so nested traced stages become child spans.
// The span ends on the first terminal signal or cancel and records the
// number of values emitted and the total demand requested.
func Trace[T any](p Publisher[T], tracer trace.Tracer, name string) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			id := uuid.NewString()
			spanCtx, span := tracer.Start(ctx, name,
				trace.WithAttributes(
					attribute.String(observability.AttrStreamName, name),
					attribute.String(observability.AttrSubscriptionID, id),
				),
			)
			ts := &traceSubscriber[T]{span: span}
			ts.init(spanCtx, s, ts)
			p.Subscribe(spanCtx, ts)
		},
	}
}

type traceSubscriber[T any] struct {
	relay[T, T]
	span      trace.Span
	values    atomic.Int64
	requested atomic.Int64
	once      sync.Once
}

func (t *traceSubscriber[T]) end(outcome string, err error) {
	t.once.Do(func() {
		t.span.SetAttributes(
			attribute.String(observability.AttrOutcome, outcome),
			attribute.Int64(observability.AttrValueCount, t.values.Load()),
			attribute.Int64(observability.AttrRequested, t.requested.Load()),
		)
		switch {
		case err != nil:
			t.span.AddEvent(observability.EventError)
			t.span.RecordError(err)
			t.span.SetStatus(codes.Error, err.Error())
		case outcome == OutcomeCancelled:
			t.span.AddEvent(observability.EventCancel)
		default:
			t.span.SetStatus(codes.Ok, "")
		}
		t.span.End()
	})
}

func (t *traceSubscriber[T]) OnNext(v T) {
	if !t.accept() {
		return
	}
	t.values.Add(1)
	t.emit(v)
}

func (t *traceSubscriber[T]) OnError(err error) {
	if !t.skipped() {
		t.end(OutcomeError, err)
	}
	t.relay.OnError(err)
}

func (t *traceSubscriber[T]) OnComplete() {
	if !t.skipped() {
		t.end(OutcomeComplete, nil)
	}
	t.relay.OnComplete()
}

func (t *traceSubscriber[T]) Request(n int64) {
	validateRequest(n)
	addDemand(&t.requested, n)
	t.relay.Request(n)
}

func (t *traceSubscriber[T]) Cancel() {
	t.end(OutcomeCancelled, nil)
	t.relay.Cancel()
}

// Metered records subscription, signal and lifetime metrics for every
// subscription to p under the stream name. A nil metrics is allowed and
// records nothing.
func Metered[T any](p Publisher[T], metrics *observability.StreamMetrics, name string) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			ms := &meteredSubscriber[T]{metrics: metrics, name: name, started: time.Now()}
			ms.init(ctx, s, ms)
			metrics.RecordSubscribe(ctx, name)
			p.Subscribe(ctx, ms)
		},
	}
}

type meteredSubscriber[T any] struct {
	relay[T, T]
	metrics *observability.StreamMetrics
	name    string
	started time.Time
	once    sync.Once
}

func (m *meteredSubscriber[T]) finish(outcome string) {
	m.once.Do(func() {
		m.metrics.RecordTerminate(m.ctx, m.name, outcome, time.Since(m.started))
	})
}

func (m *meteredSubscriber[T]) OnNext(v T) {
	if !m.accept() {
		return
	}
	m.metrics.RecordSignal(m.ctx, m.name, logger.SignalNext)
	m.emit(v)
}

func (m *meteredSubscriber[T]) OnError(err error) {
	if !m.skipped() {
		m.metrics.RecordSignal(m.ctx, m.name, logger.SignalError)
		m.finish(OutcomeError)
	}
	m.relay.OnError(err)
}

func (m *meteredSubscriber[T]) OnComplete() {
	if !m.skipped() {
		m.metrics.RecordSignal(m.ctx, m.name, logger.SignalComplete)
		m.finish(OutcomeComplete)
	}
	m.relay.OnComplete()
}

func (m *meteredSubscriber[T]) Cancel() {
	if !m.skipped() {
		m.metrics.RecordSignal(m.ctx, m.name, logger.SignalCancel)
		m.finish(OutcomeCancelled)
	}
	m.relay.Cancel()
}
