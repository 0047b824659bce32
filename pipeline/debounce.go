package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/reactive/scheduler"
)

// Debounce waits for silence of the given duration after the last value
// before emitting. If a new value arrives during the quiet period, the
// timer resets and only the latest value is emitted. A pending value is
// flushed when upstream completes.
//
// Useful for "wait until input stops" patterns (e.g., search-as-you-type,
// batching rapid events).
func Debounce[T any](p Publisher[T], duration time.Duration, sched scheduler.Scheduler) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			d := &debounceSubscriber[T]{duration: duration, sched: sched, box: newOutbox(s)}
			p.Subscribe(ctx, d)
		},
	}
}

type debounceSubscriber[T any] struct {
	duration time.Duration
	sched    scheduler.Scheduler
	box      *outbox[T]
	upstream Subscription

	mu       sync.Mutex
	latest   T
	hasValue bool
	gen      int
	timer    scheduler.CancelFunc
}

func (d *debounceSubscriber[T]) OnSubscribe(s Subscription) {
	d.upstream = s
	d.box.actual.OnSubscribe(d)
	s.Request(Unbounded)
}

func (d *debounceSubscriber[T]) OnNext(v T) {
	d.mu.Lock()
	d.latest = v
	d.hasValue = true
	d.gen++
	gen := d.gen
	// Reset the timer: new value arrived
	if d.timer != nil {
		d.timer()
	}
	d.timer = nil
	d.mu.Unlock()

	timer := d.sched.ScheduleAfter(d.duration, func() { d.fire(gen) })
	d.mu.Lock()
	if d.gen == gen && d.hasValue {
		d.timer = timer
	}
	d.mu.Unlock()
}

func (d *debounceSubscriber[T]) fire(gen int) {
	d.mu.Lock()
	if gen != d.gen || !d.hasValue {
		d.mu.Unlock()
		return
	}
	v := d.takeLocked()
	d.mu.Unlock()
	d.box.push(v, 0)
}

func (d *debounceSubscriber[T]) takeLocked() T {
	v := d.latest
	var zero T
	d.latest = zero
	d.hasValue = false
	d.timer = nil
	return v
}

func (d *debounceSubscriber[T]) stopLocked() {
	d.gen++
	if d.timer != nil {
		d.timer()
		d.timer = nil
	}
}

func (d *debounceSubscriber[T]) OnError(err error) {
	d.mu.Lock()
	d.stopLocked()
	d.hasValue = false
	d.mu.Unlock()
	d.box.fail(err)
}

func (d *debounceSubscriber[T]) OnComplete() {
	d.mu.Lock()
	d.stopLocked()
	pending := d.hasValue
	v := d.takeLocked()
	d.mu.Unlock()
	if pending {
		d.box.push(v, 0)
	}
	d.box.complete()
}

func (d *debounceSubscriber[T]) Request(n int64) { d.box.request(n) }

func (d *debounceSubscriber[T]) Cancel() {
	d.box.cancel()
	d.mu.Lock()
	d.stopLocked()
	d.mu.Unlock()
	d.upstream.Cancel()
}
