package bootstrap

import (
	"io"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/reactive/logger"
)

// Option configures the App during creation.
// Options are non-generic so they can be used with any config type.
type Option func(*appOptions)

type appOptions struct {
	logger          *logger.Logger
	gracefulTimeout *time.Duration
	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider
	summary         io.Writer
}

func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger for the application.
// If not set, the logger is initialized from the config's Logging section.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithGracefulTimeout sets the maximum duration for graceful shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) {
		o.gracefulTimeout = &d
	}
}

// WithTracerProvider supplies the tracer provider instead of exporting
// over OTLP. The caller owns its shutdown.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *appOptions) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider supplies the meter provider instead of exporting over
// OTLP. The caller owns its shutdown.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *appOptions) {
		o.meterProvider = mp
	}
}

// WithSummaryWriter sets where the startup summary is printed. Defaults to
// stdout; io.Discard silences it.
func WithSummaryWriter(w io.Writer) Option {
	return func(o *appOptions) {
		o.summary = w
	}
}
