// Package observability provides OpenTelemetry tracing and metrics
// integration for reactive streams and schedulers.
//
// Tracing:
//
//	cfg := observability.DefaultTracerConfig("my-service")
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
//	traced := pipeline.Trace(src, observability.Tracer("orders"), "orders.stream")
//
// Metrics:
//
//	mcfg := observability.DefaultMeterConfig("my-service")
//	mp, err := observability.InitMeter(ctx, &mcfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewStreamMetrics(observability.Meter("my-service"))
//	pool := scheduler.NewParallel(scheduler.WithMetrics(metrics))
package observability
