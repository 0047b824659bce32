package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/reactive/errors"
	"github.com/kbukum/reactive/scheduler"
)

// Interval emits 0, 1, 2, ... one value per period on sched, starting one
// period after subscription. It never completes. A tick that finds no
// outstanding demand terminates the stream with an overflow error.
func Interval(period time.Duration, sched scheduler.Scheduler) *Pipeline[int64] {
	if period <= 0 {
		panic(errors.ProtocolViolation("interval period must be positive").WithDetail("period", period.String()))
	}
	return &Pipeline[int64]{
		subscribe: func(_ context.Context, s Subscriber[int64]) {
			iv := &intervalSubscription{actual: s}
			s.OnSubscribe(iv)
			if iv.cancelled.Load() {
				return
			}
			stop := sched.SchedulePeriodic(period, period, iv.tick)
			iv.setStop(stop)
		},
	}
}

type intervalSubscription struct {
	actual    Subscriber[int64]
	requested atomic.Int64
	cancelled atomic.Bool
	count     int64

	mu   sync.Mutex
	stop scheduler.CancelFunc
}

func (iv *intervalSubscription) setStop(stop scheduler.CancelFunc) {
	iv.mu.Lock()
	iv.stop = stop
	iv.mu.Unlock()
	if iv.cancelled.Load() {
		stop()
	}
}

func (iv *intervalSubscription) halt() {
	iv.mu.Lock()
	stop := iv.stop
	iv.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (iv *intervalSubscription) tick() {
	if iv.cancelled.Load() {
		return
	}
	if iv.requested.Load() == 0 {
		if iv.cancelled.CompareAndSwap(false, true) {
			iv.halt()
			iv.actual.OnError(errors.Overflow("interval").WithDetail("tick", iv.count))
		}
		return
	}
	v := iv.count
	iv.count++
	producedDemand(&iv.requested, 1)
	iv.actual.OnNext(v)
}

func (iv *intervalSubscription) Request(n int64) {
	validateRequest(n)
	addDemand(&iv.requested, n)
}

func (iv *intervalSubscription) Cancel() {
	if iv.cancelled.CompareAndSwap(false, true) {
		iv.halt()
	}
}

// DelaySubscription subscribes to p only after d has elapsed on sched.
// Demand requested in the meantime is replayed once upstream arrives.
func DelaySubscription[T any](p Publisher[T], d time.Duration, sched scheduler.Scheduler) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			ds := &delayedSubscriber[T]{actual: s}
			s.OnSubscribe(ds)
			timer := sched.ScheduleAfter(d, func() {
				if ds.isCancelled() {
					return
				}
				p.Subscribe(ctx, ds)
			})
			ds.mu.Lock()
			ds.timer = timer
			ds.mu.Unlock()
			if ds.isCancelled() {
				timer()
			}
		},
	}
}

type delayedSubscriber[T any] struct {
	deferredSubscription
	actual Subscriber[T]
	timer  scheduler.CancelFunc
}

func (d *delayedSubscriber[T]) OnSubscribe(s Subscription) { d.set(s) }
func (d *delayedSubscriber[T]) OnNext(v T) {
	if !d.isCancelled() {
		d.actual.OnNext(v)
	}
}
func (d *delayedSubscriber[T]) OnError(err error) {
	if !d.isCancelled() {
		d.actual.OnError(err)
	}
}
func (d *delayedSubscriber[T]) OnComplete() {
	if !d.isCancelled() {
		d.actual.OnComplete()
	}
}

func (d *delayedSubscriber[T]) Cancel() {
	d.mu.Lock()
	timer := d.timer
	d.mu.Unlock()
	if timer != nil {
		timer()
	}
	d.deferredSubscription.Cancel()
}

// DelayElements shifts every value by d on sched. Upstream is requested one
// value at a time, so a source with values ready emits one per d in order.
// Completion follows the last delayed value; errors are not delayed.
func DelayElements[T any](p Publisher[T], d time.Duration, sched scheduler.Scheduler) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			de := &delayElementsSubscriber[T]{delay: d, sched: sched, box: newOutbox(s)}
			de.box.delivered = func(int) { de.requestNext() }
			p.Subscribe(ctx, de)
		},
	}
}

type delayElementsSubscriber[T any] struct {
	delay time.Duration
	sched scheduler.Scheduler
	box   *outbox[T]

	mu           sync.Mutex
	upstream     Subscription
	inFlight     bool
	upstreamDone bool
	timer        scheduler.CancelFunc
}

func (de *delayElementsSubscriber[T]) OnSubscribe(s Subscription) {
	de.upstream = s
	de.box.actual.OnSubscribe(de)
	if !de.box.isCancelled() {
		s.Request(1)
	}
}

func (de *delayElementsSubscriber[T]) OnNext(v T) {
	de.mu.Lock()
	de.inFlight = true
	de.mu.Unlock()
	timer := de.sched.ScheduleAfter(de.delay, func() {
		de.mu.Lock()
		de.inFlight = false
		de.timer = nil
		done := de.upstreamDone
		de.mu.Unlock()
		de.box.push(v, 0)
		if done {
			de.box.complete()
		}
	})
	de.mu.Lock()
	if de.inFlight {
		de.timer = timer
	}
	de.mu.Unlock()
}

func (de *delayElementsSubscriber[T]) requestNext() {
	de.mu.Lock()
	done := de.upstreamDone
	de.mu.Unlock()
	if !done && !de.box.isCancelled() {
		de.upstream.Request(1)
	}
}

func (de *delayElementsSubscriber[T]) OnError(err error) {
	de.mu.Lock()
	de.upstreamDone = true
	timer := de.timer
	de.timer = nil
	de.mu.Unlock()
	if timer != nil {
		timer()
	}
	de.box.fail(err)
}

func (de *delayElementsSubscriber[T]) OnComplete() {
	de.mu.Lock()
	de.upstreamDone = true
	pending := de.inFlight
	de.mu.Unlock()
	if !pending {
		de.box.complete()
	}
}

func (de *delayElementsSubscriber[T]) Request(n int64) { de.box.request(n) }

func (de *delayElementsSubscriber[T]) Cancel() {
	de.box.cancel()
	de.mu.Lock()
	timer := de.timer
	de.timer = nil
	de.mu.Unlock()
	if timer != nil {
		timer()
	}
	de.upstream.Cancel()
}

// Timeout fails with a timeout error when no value arrives within d of
// subscription or of the previous value.
func Timeout[T any](p Publisher[T], d time.Duration, sched scheduler.Scheduler) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			t := &timeoutSubscriber[T]{delay: d, sched: sched}
			t.init(ctx, s, t)
			p.Subscribe(ctx, t)
		},
	}
}

type timeoutSubscriber[T any] struct {
	relay[T, T]
	delay time.Duration
	sched scheduler.Scheduler

	mu    sync.Mutex
	index int64
	fired bool
	timer scheduler.CancelFunc
}

func (t *timeoutSubscriber[T]) OnSubscribe(s Subscription) {
	t.relay.OnSubscribe(s)
	t.arm()
}

func (t *timeoutSubscriber[T]) arm() {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer()
	}
	t.index++
	idx := t.index
	t.mu.Unlock()
	timer := t.sched.ScheduleAfter(t.delay, func() { t.expire(idx) })
	t.mu.Lock()
	if t.index == idx && !t.fired {
		t.timer = timer
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	timer()
}

func (t *timeoutSubscriber[T]) expire(idx int64) {
	t.mu.Lock()
	if idx != t.index || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.fail(errors.Timeout("timeout").WithDetail("after", t.delay.String()))
}

func (t *timeoutSubscriber[T]) disarm() {
	t.mu.Lock()
	t.fired = true
	timer := t.timer
	t.timer = nil
	t.mu.Unlock()
	if timer != nil {
		timer()
	}
}

func (t *timeoutSubscriber[T]) OnNext(v T) {
	if !t.accept() {
		return
	}
	t.mu.Lock()
	fired := t.fired
	t.mu.Unlock()
	if fired {
		return
	}
	t.emit(v)
	t.arm()
}

func (t *timeoutSubscriber[T]) OnError(err error) {
	t.disarm()
	t.relay.OnError(err)
}

func (t *timeoutSubscriber[T]) OnComplete() {
	t.disarm()
	t.relay.OnComplete()
}

func (t *timeoutSubscriber[T]) Cancel() {
	t.disarm()
	t.relay.Cancel()
}
