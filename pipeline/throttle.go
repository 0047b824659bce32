package pipeline

import (
	"context"
	"time"

	"github.com/kbukum/reactive/scheduler"
)

// ThrottleFirst drops values that arrive faster than the given interval.
// Only the first value in each interval window is emitted; subsequent
// values within the same window are dropped and replaced by a request
// for one more. Time is read from sched.
func ThrottleFirst[T any](p Publisher[T], interval time.Duration, sched scheduler.Scheduler) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			t := &throttleSubscriber[T]{interval: interval, sched: sched}
			t.init(ctx, s, t)
			p.Subscribe(ctx, t)
		},
	}
}

type throttleSubscriber[T any] struct {
	relay[T, T]
	interval time.Duration
	sched    scheduler.Scheduler
	lastEmit time.Time
	emitted  bool
}

func (t *throttleSubscriber[T]) OnNext(v T) {
	if !t.accept() {
		return
	}
	now := t.sched.Now()
	if !t.emitted || now.Sub(t.lastEmit) >= t.interval {
		t.emitted = true
		t.lastEmit = now
		t.emit(v)
		return
	}
	// Drop value: too soon
	t.replenish()
}
