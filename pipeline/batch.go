package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/reactive/errors"
	"github.com/kbukum/reactive/scheduler"
)

// Buffer groups values into slices of size. The last group may be shorter
// when upstream completes; an error discards the partial group. Demand for
// n groups requests n*size values upstream.
func Buffer[T any](p Publisher[T], size int) *Pipeline[[]T] {
	if size <= 0 {
		panic(errors.ProtocolViolation("buffer size must be positive").WithDetail("size", size))
	}
	return &Pipeline[[]T]{
		subscribe: func(ctx context.Context, s Subscriber[[]T]) {
			b := &bufferSubscriber[T]{size: size}
			b.init(ctx, s, b)
			p.Subscribe(ctx, b)
		},
	}
}

type bufferSubscriber[T any] struct {
	relay[T, []T]
	size  int
	batch []T
}

func (b *bufferSubscriber[T]) Request(n int64) {
	validateRequest(n)
	b.relay.Request(multiplyCap(n, int64(b.size)))
}

func (b *bufferSubscriber[T]) OnNext(v T) {
	if !b.accept() {
		return
	}
	b.batch = append(b.batch, v)
	if len(b.batch) >= b.size {
		batch := b.batch
		b.batch = make([]T, 0, b.size)
		b.emit(batch)
	}
}

func (b *bufferSubscriber[T]) OnComplete() {
	b.upstreamTerminated()
	if b.skipped() {
		return
	}
	if len(b.batch) > 0 {
		batch := b.batch
		b.batch = nil
		b.emit(batch)
	}
	b.terminate(nil, false)
}

func (b *bufferSubscriber[T]) OnError(err error) {
	b.batch = nil
	b.relay.OnError(err)
}

// BufferTimeout collects up to size values or waits d after the first
// value of a group (whichever comes first), then emits the group.
// Upstream is requested unbounded; groups wait for downstream demand.
func BufferTimeout[T any](p Publisher[T], size int, d time.Duration, sched scheduler.Scheduler) *Pipeline[[]T] {
	if size <= 0 && d <= 0 {
		size = 1
	}
	return &Pipeline[[]T]{
		subscribe: func(ctx context.Context, s Subscriber[[]T]) {
			b := &bufferTimeoutSubscriber[T]{size: size, timeout: d, sched: sched, box: newOutbox(s)}
			p.Subscribe(ctx, b)
		},
	}
}

type bufferTimeoutSubscriber[T any] struct {
	size    int
	timeout time.Duration
	sched   scheduler.Scheduler
	box     *outbox[[]T]

	mu       sync.Mutex
	upstream Subscription
	batch    []T
	gen      int
	timer    scheduler.CancelFunc
}

func (b *bufferTimeoutSubscriber[T]) OnSubscribe(s Subscription) {
	b.upstream = s
	b.box.actual.OnSubscribe(b)
	s.Request(Unbounded)
}

func (b *bufferTimeoutSubscriber[T]) OnNext(v T) {
	b.mu.Lock()
	b.batch = append(b.batch, v)
	if b.size > 0 && len(b.batch) >= b.size {
		batch := b.takeLocked()
		b.mu.Unlock()
		b.box.push(batch, 0)
		return
	}
	if len(b.batch) == 1 && b.timeout > 0 {
		gen := b.gen
		b.timer = b.sched.ScheduleAfter(b.timeout, func() { b.flush(gen) })
	}
	b.mu.Unlock()
}

// takeLocked detaches the current group and disarms its timer.
func (b *bufferTimeoutSubscriber[T]) takeLocked() []T {
	batch := b.batch
	b.batch = nil
	b.gen++
	if b.timer != nil {
		b.timer()
		b.timer = nil
	}
	return batch
}

func (b *bufferTimeoutSubscriber[T]) flush(gen int) {
	b.mu.Lock()
	if gen != b.gen || len(b.batch) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.takeLocked()
	b.mu.Unlock()
	b.box.push(batch, 0)
}

func (b *bufferTimeoutSubscriber[T]) OnError(err error) {
	b.mu.Lock()
	b.takeLocked()
	b.mu.Unlock()
	b.box.fail(err)
}

func (b *bufferTimeoutSubscriber[T]) OnComplete() {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	if len(batch) > 0 {
		b.box.push(batch, 0)
	}
	b.box.complete()
}

func (b *bufferTimeoutSubscriber[T]) Request(n int64) { b.box.request(n) }

func (b *bufferTimeoutSubscriber[T]) Cancel() {
	b.box.cancel()
	b.mu.Lock()
	b.takeLocked()
	b.mu.Unlock()
	b.upstream.Cancel()
}
