package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kbukum/reactive/logger"
	"github.com/kbukum/reactive/observability"
	"github.com/kbukum/reactive/pipeline"
	"github.com/kbukum/reactive/scheduler"
	"github.com/kbukum/reactive/version"
)

// App owns the runtime shared by the pipelines of one process.
// The type parameter C is the config type; any struct embedding
// config.EngineConfig satisfies Config.
//
// Example:
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*WorkerConfig]) error {
//	    // a.Cfg is *WorkerConfig, a.Scheduler is running
//	    return nil
//	})
//	app.RunTask(ctx, process)
type App[C Config] struct {
	Name    string
	Version string
	Cfg     C
	Logger  *logger.Logger
	Summary *Summary

	// Set during startup.
	Scheduler *scheduler.Parallel
	Tracer    trace.Tracer
	Metrics   *observability.StreamMetrics

	opts            *appOptions
	gracefulTimeout time.Duration
	onConfigure     []func(ctx context.Context, app *App[C]) error

	onStart []Hook
	onReady []Hook
	onStop  []Hook

	// Providers created by the App and flushed on shutdown.
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	started        bool
}

// NewApp creates an application from a typed config. It applies defaults,
// validates the config and initializes the logger. Nothing is started
// until Run, RunTask or Start.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	base := cfg.GetEngineConfig()
	o := resolveOptions(opts)

	app := &App[C]{
		Name:            base.Name,
		Version:         base.Version,
		Cfg:             cfg,
		Tracer:          noop.NewTracerProvider().Tracer(base.Name),
		opts:            o,
		gracefulTimeout: 15 * time.Second,
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}

	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(base.Logging)
		app.Logger = logger.GetGlobalLogger()
	}

	app.Summary = NewSummary(base.Name, base.Version)
	app.Summary.SetEngine(version.Get().Short())
	return app, nil
}

// OnConfigure registers a callback that runs after the runtime is up.
// Use it to build pipelines and sinks that need the scheduler or tracer.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// Run starts the runtime and blocks until SIGINT/SIGTERM or ctx is done,
// then shuts down. Use it for processes driven by hot sources.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	a.Logger.Info("Engine ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)

	return a.stop()
}

// RunTask starts the runtime, runs task and shuts down when it returns.
// SIGINT/SIGTERM cancel the task's context. The task error takes
// precedence over a shutdown error.
//
// Example:
//
//	app.RunTask(ctx, func(ctx context.Context) error {
//	    return pipeline.ForEach(ctx, p, store)
//	})
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.Logger.Info("Received signal, cancelling task", logger.Fields("signal", sig.String()))
			cancel()
		case <-taskCtx.Done():
		}
	}()

	taskErr := task(taskCtx)

	if stopErr := a.stop(); stopErr != nil {
		if taskErr != nil {
			return taskErr
		}
		return stopErr
	}
	return taskErr
}

// Start brings the runtime up without blocking: operator defaults,
// telemetry, the parallel scheduler, then hooks and configure callbacks.
// Pair it with Shutdown when managing the lifecycle yourself.
func (a *App[C]) Start(ctx context.Context) error {
	start := time.Now()
	base := a.Cfg.GetEngineConfig()

	build := version.Get()
	a.Logger.Info("Starting engine", logger.Fields(
		"name", a.Name,
		"version", a.Version,
		"engine", build.Short(),
		"go_version", build.GoVersion,
	))

	pipeline.Configure(base.Pipeline.Defaults())

	if err := a.initTelemetry(ctx); err != nil {
		_ = a.shutdownTelemetry(context.Background())
		return fmt.Errorf("telemetry: %w", err)
	}

	a.Scheduler = scheduler.NewParallel(
		scheduler.WithName(base.Scheduler.Name),
		scheduler.WithWorkers(base.Scheduler.Workers),
		scheduler.WithLogger(a.Logger.WithComponent("scheduler")),
		scheduler.WithMetrics(a.Metrics),
	)
	a.started = true
	a.trackRuntime()

	if err := runHooks(ctx, a.onStart); err != nil {
		a.abort()
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	if err := a.configure(ctx); err != nil {
		a.abort()
		return fmt.Errorf("configuration failed: %w", err)
	}
	if err := runHooks(ctx, a.onReady); err != nil {
		a.abort()
		return fmt.Errorf("onReady hook failed: %w", err)
	}

	a.Summary.TrackHooks("start", len(a.onStart))
	a.Summary.TrackHooks("configure", len(a.onConfigure))
	a.Summary.TrackHooks("ready", len(a.onReady))
	a.Summary.TrackHooks("stop", len(a.onStop))
	a.Summary.SetStartupDuration(time.Since(start))
	a.Summary.Display(a.summaryWriter())
	return nil
}

// initTelemetry sets up the tracer and stream metrics. Supplied providers
// take precedence over OTLP export; with neither, tracing is a no-op and
// metrics are not recorded.
func (a *App[C]) initTelemetry(ctx context.Context) error {
	base := a.Cfg.GetEngineConfig()

	switch {
	case a.opts.tracerProvider != nil:
		a.Tracer = a.opts.tracerProvider.Tracer(a.Name)
	case base.Tracing.Enabled:
		tcfg := base.Tracing.TracerConfig(a.Name, a.Version, base.Environment)
		tp, err := observability.InitTracer(ctx, &tcfg)
		if err != nil {
			return err
		}
		a.tracerProvider = tp
		a.Tracer = tp.Tracer(a.Name)
	}

	switch {
	case a.opts.meterProvider != nil:
		m, err := observability.NewStreamMetrics(a.opts.meterProvider.Meter(a.Name))
		if err != nil {
			return err
		}
		a.Metrics = m
	case base.Metrics.Enabled:
		mcfg := base.Metrics.MeterConfig(a.Name, a.Version, base.Environment)
		mp, err := observability.InitMeter(ctx, &mcfg)
		if err != nil {
			return err
		}
		a.meterProvider = mp
		m, err := observability.NewStreamMetrics(mp.Meter(a.Name))
		if err != nil {
			return err
		}
		a.Metrics = m
	}
	return nil
}

func (a *App[C]) trackRuntime() {
	base := a.Cfg.GetEngineConfig()
	a.Summary.TrackRuntime("scheduler", "scheduler",
		fmt.Sprintf("%s, %d workers", base.Scheduler.Name, a.Scheduler.Workers()), true)

	d := pipeline.CurrentDefaults()
	a.Summary.TrackRuntime("pipeline", "defaults",
		fmt.Sprintf("prefetch %d, concurrency %d", d.Prefetch, d.Concurrency), true)

	switch {
	case a.opts.tracerProvider != nil:
		a.Summary.TrackRuntime("tracing", "telemetry", "external provider", true)
	case base.Tracing.Enabled:
		a.Summary.TrackRuntime("tracing", "telemetry",
			fmt.Sprintf("otlp %s, sample %.2f", base.Tracing.Endpoint, base.Tracing.SampleRate), true)
	default:
		a.Summary.TrackRuntime("tracing", "telemetry", "disabled", false)
	}

	switch {
	case a.opts.meterProvider != nil:
		a.Summary.TrackRuntime("metrics", "telemetry", "external provider", true)
	case base.Metrics.Enabled:
		a.Summary.TrackRuntime("metrics", "telemetry", "otlp "+base.Metrics.Endpoint, true)
	default:
		a.Summary.TrackRuntime("metrics", "telemetry", "disabled", false)
	}
}

// configure runs registered configuration callbacks.
func (a *App[C]) configure(ctx context.Context) error {
	if len(a.onConfigure) == 0 {
		return nil
	}

	a.Logger.Debug("Running configuration callbacks", logger.Fields("count", len(a.onConfigure)))
	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (a *App[C]) summaryWriter() io.Writer {
	if a.opts.summary != nil {
		return a.opts.summary
	}
	return os.Stdout
}

// WaitForSignal blocks until an OS interrupt/term signal or context cancellation.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context cancelled, shutting down")
		return nil
	}
}

// Shutdown stops the runtime. Use when managing your own lifecycle.
func (a *App[C]) Shutdown(ctx context.Context) error {
	return a.stop()
}

// abort releases what Start created after a failed startup step.
func (a *App[C]) abort() {
	if a.Scheduler != nil {
		_ = a.Scheduler.Close()
	}
	_ = a.shutdownTelemetry(context.Background())
	a.started = false
}

// stop runs OnStop hooks, then closes the scheduler and flushes telemetry
// within the graceful timeout.
func (a *App[C]) stop() error {
	if !a.started {
		return nil
	}
	a.started = false

	a.Logger.Info("Shutting down engine", logger.Fields("timeout", a.gracefulTimeout.String()))

	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var shutdownErr error

	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook error", logger.MergeWithError(nil, err))
		shutdownErr = err
	}

	if err := a.Scheduler.Close(); err != nil {
		a.Logger.Error("Scheduler close error", logger.MergeWithError(nil, err))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}

	if err := a.shutdownTelemetry(ctx); err != nil {
		a.Logger.Error("Telemetry shutdown error", logger.MergeWithError(nil, err))
		if shutdownErr == nil {
			shutdownErr = err
		}
	}

	a.Logger.Info("Engine shutdown complete")
	return shutdownErr
}

func (a *App[C]) shutdownTelemetry(ctx context.Context) error {
	var firstErr error
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
		a.tracerProvider = nil
	}
	if a.meterProvider != nil {
		if err := a.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		a.meterProvider = nil
	}
	return firstErr
}

// Instrument wraps p in a span and stream metrics named name, using the
// App's tracer and metrics. Call it after Start.
func Instrument[T any, C Config](a *App[C], p pipeline.Publisher[T], name string) *pipeline.Pipeline[T] {
	return pipeline.Metered(pipeline.Trace(p, a.Tracer, name), a.Metrics, name)
}
