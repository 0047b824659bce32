package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/reactive/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Task states recorded by RecordTask.
const (
	TaskSubmitted = "submitted"
	TaskExecuted  = "executed"
	TaskCancelled = "cancelled"
	TaskDropped   = "dropped"
	TaskPanicked  = "panicked"
)

// StreamMetrics holds the instruments shared by streams and schedulers.
type StreamMetrics struct {
	signals             metric.Int64Counter
	subscriptionsActive metric.Int64UpDownCounter
	streamDuration      metric.Float64Histogram
	schedulerTasks      metric.Int64Counter
	schedulerQueue      metric.Int64UpDownCounter
}

// NewStreamMetrics creates metric instruments on the given meter.
func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	signals, err := meter.Int64Counter("stream.signals",
		metric.WithDescription("Signals delivered to subscribers by stream and signal type"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.signals counter: %w", err)
	}

	active, err := meter.Int64UpDownCounter("stream.subscriptions.active",
		metric.WithDescription("Number of subscriptions that have not terminated"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.subscriptions.active counter: %w", err)
	}

	duration, err := meter.Float64Histogram("stream.duration",
		metric.WithDescription("Time from subscribe to terminal signal in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.duration histogram: %w", err)
	}

	tasks, err := meter.Int64Counter("scheduler.tasks",
		metric.WithDescription("Scheduler tasks by scheduler and state"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler.tasks counter: %w", err)
	}

	queue, err := meter.Int64UpDownCounter("scheduler.queue.depth",
		metric.WithDescription("Tasks waiting in a scheduler queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler.queue.depth counter: %w", err)
	}

	return &StreamMetrics{
		signals:             signals,
		subscriptionsActive: active,
		streamDuration:      duration,
		schedulerTasks:      tasks,
		schedulerQueue:      queue,
	}, nil
}

// RecordSubscribe increments the active subscription count.
func (m *StreamMetrics) RecordSubscribe(ctx context.Context, stream string) {
	if m == nil {
		return
	}
	m.subscriptionsActive.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStreamName, stream)))
}

// RecordSignal counts one signal of the given type.
func (m *StreamMetrics) RecordSignal(ctx context.Context, stream, signal string) {
	if m == nil {
		return
	}
	m.signals.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStreamName, stream),
		attribute.String(AttrSignal, signal),
	))
}

// RecordTerminate decrements active subscriptions and records the stream lifetime.
func (m *StreamMetrics) RecordTerminate(ctx context.Context, stream, outcome string, lifetime time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrStreamName, stream))
	m.subscriptionsActive.Add(ctx, -1, attrs)
	m.streamDuration.Record(ctx, lifetime.Seconds(), metric.WithAttributes(
		attribute.String(AttrStreamName, stream),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordTask counts a scheduler task state transition.
func (m *StreamMetrics) RecordTask(ctx context.Context, scheduler, state string) {
	if m == nil {
		return
	}
	m.schedulerTasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrScheduler, scheduler),
		attribute.String(AttrTaskState, state),
	))
}

// RecordQueueDepth adjusts the queued task gauge by delta.
func (m *StreamMetrics) RecordQueueDepth(ctx context.Context, scheduler string, delta int64) {
	if m == nil {
		return
	}
	m.schedulerQueue.Add(ctx, delta, metric.WithAttributes(attribute.String(AttrScheduler, scheduler)))
}
