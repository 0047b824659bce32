package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/reactive/scheduler"
)

// Boundary decides whether a value arriving exactly at the end of a time
// window belongs to the window.
type Boundary int

const (
	// DefaultBoundary keeps the operator's own rule: SkipFor admits values
	// at the boundary, TakeFor excludes them.
	DefaultBoundary Boundary = iota
	// Inclusive counts the boundary instant as inside the window.
	Inclusive
	// Exclusive counts the boundary instant as outside the window.
	Exclusive
)

// WindowOption configures SkipFor and TakeFor.
type WindowOption func(*windowConfig)

type windowConfig struct {
	boundary Boundary
}

// WithBoundary overrides the boundary rule.
func WithBoundary(b Boundary) WindowOption {
	return func(c *windowConfig) { c.boundary = b }
}

func resolveWindow(opts []WindowOption, fallback Boundary) windowConfig {
	cfg := windowConfig{boundary: DefaultBoundary}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.boundary == DefaultBoundary {
		cfg.boundary = fallback
	}
	return cfg
}

// SkipFor drops values that arrive within d of subscription, measured on
// the scheduler clock. By default a value arriving exactly at d is emitted;
// WithBoundary(Inclusive) drops it as part of the skipped window.
func SkipFor[T any](p Publisher[T], d time.Duration, sched scheduler.Scheduler, opts ...WindowOption) *Pipeline[T] {
	cfg := resolveWindow(opts, Exclusive)
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			k := &skipForSubscriber[T]{
				sched:    sched,
				deadline: sched.Now().Add(d),
				boundary: cfg.boundary,
			}
			k.init(ctx, s, k)
			p.Subscribe(ctx, k)
		},
	}
}

type skipForSubscriber[T any] struct {
	relay[T, T]
	sched    scheduler.Scheduler
	deadline time.Time
	boundary Boundary
	open     bool
}

func (k *skipForSubscriber[T]) OnNext(v T) {
	if !k.accept() {
		return
	}
	if !k.open {
		now := k.sched.Now()
		k.open = now.After(k.deadline) || (k.boundary == Exclusive && now.Equal(k.deadline))
	}
	if k.open {
		k.emit(v)
		return
	}
	k.replenish()
}

// TakeFor emits values for d after subscription, then completes and
// cancels upstream. A timer armed at subscription fires at d; by default
// values scheduled for that same instant are excluded. With
// WithBoundary(Inclusive) completion yields to work already due at d.
func TakeFor[T any](p Publisher[T], d time.Duration, sched scheduler.Scheduler, opts ...WindowOption) *Pipeline[T] {
	cfg := resolveWindow(opts, Exclusive)
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			t := &takeForSubscriber[T]{sched: sched, boundary: cfg.boundary}
			t.deadline = sched.Now().Add(d)
			t.init(ctx, s, t)
			p.Subscribe(ctx, t)
			if t.skipped() {
				return
			}
			timer := sched.ScheduleAfter(d, t.expire)
			t.mu.Lock()
			t.timer = timer
			t.mu.Unlock()
			if t.closed.Load() {
				timer()
			}
		},
	}
}

type takeForSubscriber[T any] struct {
	relay[T, T]
	sched    scheduler.Scheduler
	deadline time.Time
	boundary Boundary

	mu     sync.Mutex
	timer  scheduler.CancelFunc
	closed atomic.Bool
}

func (t *takeForSubscriber[T]) expire() {
	if t.boundary == Inclusive {
		// Let tasks already queued for this instant run first.
		t.sched.Schedule(t.close)
		return
	}
	t.close()
}

func (t *takeForSubscriber[T]) close() {
	if t.closed.CompareAndSwap(false, true) {
		t.complete()
	}
}

func (t *takeForSubscriber[T]) OnNext(v T) {
	if !t.accept() || t.closed.Load() {
		return
	}
	now := t.sched.Now()
	if now.After(t.deadline) || (t.boundary == Exclusive && now.Equal(t.deadline)) {
		t.close()
		return
	}
	t.emit(v)
}

func (t *takeForSubscriber[T]) stopTimer() {
	t.closed.Store(true)
	t.mu.Lock()
	timer := t.timer
	t.timer = nil
	t.mu.Unlock()
	if timer != nil {
		timer()
	}
}

func (t *takeForSubscriber[T]) OnError(err error) {
	t.stopTimer()
	t.relay.OnError(err)
}

func (t *takeForSubscriber[T]) OnComplete() {
	t.stopTimer()
	t.relay.OnComplete()
}

func (t *takeForSubscriber[T]) Cancel() {
	t.stopTimer()
	t.relay.Cancel()
}
