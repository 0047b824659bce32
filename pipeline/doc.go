// Package pipeline provides composable, push-based reactive streams with
// demand-driven backpressure.
//
// A Publisher emits values to a Subscriber only after the subscriber has
// requested them through its Subscription. Pipelines are cold and lazy: no
// work happens until Subscribe (or a terminal such as Collect, Drain or
// ForEach) is called, and every subscription replays the source
// independently. Sink is the hot exception, fed from outside and shared.
//
// Operators are package functions rather than methods because Go methods
// cannot introduce type parameters.
//
// # Sources
//
//   - Just, FromSlice, Range: fixed values, emitted as demand allows
//   - FromSeq, FromIterator, FromFunc, FromCallable: lazily pulled values
//   - Interval, DelaySubscription, DelayElements: scheduler-driven timing
//   - Empty, Error, Never, Defer
//   - NewSink: hot source with per-subscriber overflow policy
//
// # Operators
//
// Stateless:
//
//   - Map, Filter, FilterE, Tap, TapEach, FanOut
//
// Stateful:
//
//   - Distinct, DistinctBy, Skip, Take, SkipFor, TakeFor, Timeout
//   - Buffer, BufferTimeout, ThrottleFirst, Debounce
//   - Reduce, Count, CollectList, CollectMap, All, Any
//   - Concat
//
// Concurrent (multi-goroutine when given a parallel scheduler):
//
//   - FlatMap: merge inner publishers, bounded by WithConcurrency
//   - Parallel: concurrent Map on a scheduler (order NOT preserved)
//   - Merge: combine publishers in arrival order
//   - Zip2, ZipWith, ZipN: combine publishers positionally
//   - FirstWithSignal: mirror whichever publisher signals first
//   - SubscribeOn, PublishOn: move work onto a scheduler
//
// Observability:
//
//   - Log: one structured log entry per signal
//   - Trace: one span per subscription
//   - Metered: OpenTelemetry counters per stream
//
// # Errors
//
// Source failures arrive as errors.ErrCodeUpstream, failures of user
// functions as errors.ErrCodeOperator. Protocol misuse such as a
// non-positive Request panics with errors.ErrCodeProtocolViolation.
//
// # Usage
//
//	src := pipeline.Range(1, 5)
//	doubled := pipeline.Map(src, func(_ context.Context, n int) (int, error) {
//	    return n * 2, nil
//	})
//	evens := pipeline.Filter(doubled, func(n int) bool { return n%4 == 0 })
//	results, _ := pipeline.Collect(ctx, evens)
//
// With schedulers:
//
//	pool := scheduler.NewParallel(scheduler.WithWorkers(4))
//	defer pool.Close()
//	batches := pipeline.Buffer(pipeline.FromSlice(items), 3)
//	flat := pipeline.FlatMap(batches, func(_ context.Context, b []string) (pipeline.Publisher[string], error) {
//	    return pipeline.SubscribeOn(pipeline.FromSlice(b), pool), nil
//	})
//	pipeline.Drain(flat, sink.Send).Run(ctx)
package pipeline
