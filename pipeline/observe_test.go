package pipeline_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/reactive/logger"
	"github.com/kbukum/reactive/observability"
	"github.com/kbukum/reactive/pipeline"
	"github.com/kbukum/reactive/pipeline/pipelinetest"
)

func newBufferLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.NewWithWriter(buf, &logger.Config{Level: "debug", Format: "json"}, "test")
}

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var e map[string]any
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("invalid log line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestLog_Signals(t *testing.T) {
	var buf bytes.Buffer
	p := pipeline.Log(pipeline.Just("a", "b"), pipeline.WithLogLogger(newBufferLogger(&buf)), pipeline.WithLogName("letters"))

	pipelinetest.Create(t, p).
		ExpectNext("a", "b").
		VerifyComplete()

	entries := logEntries(t, &buf)
	want := []string{
		logger.SignalSubscribe,
		logger.SignalRequest,
		logger.SignalNext,
		logger.SignalNext,
		logger.SignalComplete,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(entries), entries)
	}
	id := entries[0][logger.FieldSubscriptionID]
	for i, e := range entries {
		if e[logger.FieldSignal] != want[i] {
			t.Errorf("entry %d: signal %v, want %s", i, e[logger.FieldSignal], want[i])
		}
		if e[logger.FieldOperator] != "letters" {
			t.Errorf("entry %d: operator %v", i, e[logger.FieldOperator])
		}
		if e[logger.FieldSubscriptionID] != id {
			t.Errorf("entry %d: subscription id changed", i)
		}
	}
	if entries[1][logger.FieldDemand] != "unbounded" {
		t.Errorf("expected unbounded demand, got %v", entries[1][logger.FieldDemand])
	}
	if entries[2][logger.FieldValue] != "a" {
		t.Errorf("expected value a, got %v", entries[2][logger.FieldValue])
	}
}

func TestLog_ErrorAndOptions(t *testing.T) {
	var buf bytes.Buffer
	boom := stderrors.New("boom")
	src := pipeline.Concat[int](pipeline.Just(1), pipeline.Error[int](boom))
	p := pipeline.Log(src,
		pipeline.WithLogLogger(newBufferLogger(&buf)),
		pipeline.WithLogLevel(zerolog.DebugLevel),
		pipeline.WithoutValues(),
	)

	pipelinetest.Create(t, p).
		ExpectNext(1).
		VerifyErrorIs(boom)

	entries := logEntries(t, &buf)
	last := entries[len(entries)-1]
	if last["level"] != "error" || last[logger.FieldSignal] != logger.SignalError {
		t.Errorf("expected an error entry, got %v", last)
	}
	if last[logger.FieldError] != "boom" {
		t.Errorf("expected error field, got %v", last[logger.FieldError])
	}
	for _, e := range entries {
		if e[logger.FieldSignal] == logger.SignalNext {
			if _, ok := e[logger.FieldValue]; ok {
				t.Error("values should be omitted")
			}
			if e["level"] != "debug" {
				t.Errorf("expected debug level, got %v", e["level"])
			}
		}
	}
}

func TestLog_Cancel(t *testing.T) {
	var buf bytes.Buffer
	p := pipeline.Log(pipeline.Never[int](), pipeline.WithLogLogger(newBufferLogger(&buf)))

	pipelinetest.Create(t, p).ThenCancel().Verify()

	entries := logEntries(t, &buf)
	if got := entries[len(entries)-1][logger.FieldSignal]; got != logger.SignalCancel {
		t.Errorf("expected a cancel entry last, got %v", got)
	}
}

func newSpanRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, tp
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTrace_Outcomes(t *testing.T) {
	boom := stderrors.New("boom")

	tests := []struct {
		name    string
		run     func(t *testing.T, p func(pipeline.Publisher[int]) *pipeline.Pipeline[int])
		outcome string
		status  codes.Code
		values  int64
	}{
		{
			name: "complete",
			run: func(t *testing.T, wrap func(pipeline.Publisher[int]) *pipeline.Pipeline[int]) {
				pipelinetest.Create(t, wrap(pipeline.Range(0, 3))).ExpectNextCount(3).VerifyComplete()
			},
			outcome: pipeline.OutcomeComplete,
			status:  codes.Ok,
			values:  3,
		},
		{
			name: "error",
			run: func(t *testing.T, wrap func(pipeline.Publisher[int]) *pipeline.Pipeline[int]) {
				pipelinetest.Create(t, wrap(pipeline.Error[int](boom))).VerifyErrorIs(boom)
			},
			outcome: pipeline.OutcomeError,
			status:  codes.Error,
		},
		{
			name: "cancel",
			run: func(t *testing.T, wrap func(pipeline.Publisher[int]) *pipeline.Pipeline[int]) {
				pipelinetest.Create(t, wrap(pipeline.Never[int]())).ThenCancel().Verify()
			},
			outcome: pipeline.OutcomeCancelled,
			status:  codes.Unset,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr, tp := newSpanRecorder(t)
			tracer := tp.Tracer("test")
			tt.run(t, func(p pipeline.Publisher[int]) *pipeline.Pipeline[int] {
				return pipeline.Trace(p, tracer, "numbers")
			})

			spans := sr.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 ended span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != "numbers" {
				t.Errorf("span name %q", span.Name())
			}
			if v, _ := spanAttr(span, observability.AttrOutcome); v.AsString() != tt.outcome {
				t.Errorf("outcome %q, want %q", v.AsString(), tt.outcome)
			}
			if v, _ := spanAttr(span, observability.AttrValueCount); v.AsInt64() != tt.values {
				t.Errorf("values %d, want %d", v.AsInt64(), tt.values)
			}
			if span.Status().Code != tt.status {
				t.Errorf("status %v, want %v", span.Status().Code, tt.status)
			}
			if _, ok := spanAttr(span, observability.AttrSubscriptionID); !ok {
				t.Error("missing subscription id")
			}
		})
	}
}

func TestTrace_NestedStagesAreChildren(t *testing.T) {
	sr, tp := newSpanRecorder(t)
	tracer := tp.Tracer("test")

	inner := pipeline.Trace(pipeline.Just(1, 2), tracer, "inner")
	outer := pipeline.Trace(pipeline.Map(inner, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	}), tracer, "outer")

	pipelinetest.Create(t, outer).ExpectNext(2, 4).VerifyComplete()

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range sr.Ended() {
		spans[s.Name()] = s
	}
	if len(spans) != 2 {
		t.Fatalf("expected inner and outer spans, got %d", len(spans))
	}
	if spans["inner"].Parent().SpanID() != spans["outer"].SpanContext().SpanID() {
		t.Error("inner span should be a child of outer")
	}
	if v, _ := spanAttr(spans["outer"], observability.AttrRequested); v.AsInt64() != pipeline.Unbounded {
		t.Errorf("requested %d, want unbounded", v.AsInt64())
	}
}

func newMeteredReader(t *testing.T) (*observability.StreamMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observability.NewStreamMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("creating metrics: %v", err)
	}
	return m, reader
}

func metricSum(t *testing.T, reader *sdkmetric.ManualReader, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
		points:
			for _, dp := range sum.DataPoints {
				for _, a := range attrs {
					if v, ok := dp.Attributes.Value(a.Key); !ok || v != a.Value {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetered(t *testing.T) {
	metrics, reader := newMeteredReader(t)
	stream := attribute.String(observability.AttrStreamName, "numbers")

	pipelinetest.Create(t, pipeline.Metered(pipeline.Range(0, 3), metrics, "numbers")).
		ExpectNextCount(3).
		VerifyComplete()

	next := attribute.String(observability.AttrSignal, logger.SignalNext)
	if got := metricSum(t, reader, "stream.signals", stream, next); got != 3 {
		t.Errorf("onNext signals = %d, want 3", got)
	}
	complete := attribute.String(observability.AttrSignal, logger.SignalComplete)
	if got := metricSum(t, reader, "stream.signals", stream, complete); got != 1 {
		t.Errorf("onComplete signals = %d, want 1", got)
	}
	if got := metricSum(t, reader, "stream.subscriptions.active", stream); got != 0 {
		t.Errorf("active subscriptions = %d, want 0 after completion", got)
	}
}

func TestMetered_CancelAndNil(t *testing.T) {
	metrics, reader := newMeteredReader(t)
	stream := attribute.String(observability.AttrStreamName, "idle")

	pipelinetest.Create(t, pipeline.Metered(pipeline.Never[int](), metrics, "idle")).ThenCancel().Verify()

	cancel := attribute.String(observability.AttrSignal, logger.SignalCancel)
	if got := metricSum(t, reader, "stream.signals", stream, cancel); got != 1 {
		t.Errorf("cancel signals = %d, want 1", got)
	}

	pipelinetest.Create(t, pipeline.Metered(pipeline.Just(1), nil, "unmetered")).
		ExpectNext(1).
		VerifyComplete()
}
