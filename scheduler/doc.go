// Package scheduler decides where and when stream work runs.
//
// Three implementations are provided:
//
//   - Immediate: runs tasks synchronously on the calling goroutine; delayed
//     tasks use real timers.
//   - Parallel: a fixed pool of worker goroutines fed by a shared FIFO queue.
//     No ordering is guaranteed across workers.
//   - Virtual: a logical clock and a time-ordered task queue. Nothing fires
//     until the clock is advanced, which makes timing-dependent streams
//     deterministic and fast to test.
//
// There is no global scheduler. Operators that need time or concurrency take
// a Scheduler argument, so tests substitute a Virtual scheduler freely:
//
//	vts := scheduler.NewVirtual()
//	ticks := pipeline.Take(pipeline.Interval(time.Second, vts), 3)
//	vts.AdvanceBy(3 * time.Second)
package scheduler
