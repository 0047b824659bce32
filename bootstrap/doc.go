// Package bootstrap wires the engine's runtime for a process: logging,
// operator defaults, OpenTelemetry providers and the shared parallel
// scheduler, with startup and shutdown hooks around a task.
//
// # Quick Start
//
//	cfg, err := config.Load("ingest")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app, err := bootstrap.NewApp(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = app.RunTask(ctx, func(ctx context.Context) error {
//	    p := bootstrap.Instrument(app, pipeline.Parallel(src, 8, app.Scheduler, enrich), "enrich")
//	    return pipeline.ForEach(ctx, p, store)
//	})
//
// Shutdown runs OnStop hooks, stops the scheduler and flushes the
// telemetry providers the App created.
package bootstrap
