package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kbukum/reactive/errors"
)

// Subscription links one subscriber to one publisher. It carries demand
// upstream and can be cancelled at any time.
type Subscription interface {
	// Request adds n to the outstanding demand. n must be positive.
	Request(n int64)
	// Cancel stops the flow of signals. It is idempotent.
	Cancel()
}

// Subscriber receives the signals of a single subscription.
//
// Signals arrive serially: OnSubscribe exactly once, then zero or more
// OnNext, then at most one of OnError or OnComplete.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(v T)
	OnError(err error)
	OnComplete()
}

// Publisher is a source of values that can be subscribed to.
type Publisher[T any] interface {
	Subscribe(ctx context.Context, s Subscriber[T])
}

// Iterator provides pull-based sequential access to a stream of values.
// Sources built with FromIterator and FromFunc pull from it on demand.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// Pipeline is the concrete Publisher returned by every constructor and
// operator in this package. Pipelines are cold and lazy: no work happens
// until a subscriber arrives, and each subscription runs independently.
type Pipeline[T any] struct {
	subscribe func(ctx context.Context, s Subscriber[T])
}

// Subscribe attaches s to the pipeline.
func (p *Pipeline[T]) Subscribe(ctx context.Context, s Subscriber[T]) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.subscribe(ctx, s)
}

// New creates a pipeline from a raw subscribe function. The function must
// call s.OnSubscribe before any other signal.
func New[T any](subscribe func(ctx context.Context, s Subscriber[T])) *Pipeline[T] {
	return &Pipeline[T]{subscribe: subscribe}
}

// Runnable is a fully-configured pipeline ready to execute.
type Runnable struct {
	run func(ctx context.Context) error
}

// Run executes the pipeline until completion or context cancellation.
func (r *Runnable) Run(ctx context.Context) error {
	return r.run(ctx)
}

// --- Terminals ---

// Subscribe requests unbounded demand from p and routes its signals to the
// given callbacks. Nil callbacks are ignored. Cancelling ctx cancels the
// subscription.
func Subscribe[T any](ctx context.Context, p Publisher[T], onNext func(T), onError func(error), onComplete func()) Subscription {
	if ctx == nil {
		ctx = context.Background()
	}
	ls := &lambdaSubscriber[T]{onNext: onNext, onError: onError, onComplete: onComplete}
	stop := context.AfterFunc(ctx, ls.Cancel)
	ls.release = func() { stop() }
	p.Subscribe(ctx, ls)
	return ls
}

// lambdaSubscriber adapts callbacks to Subscriber and doubles as the
// handle returned by Subscribe.
type lambdaSubscriber[T any] struct {
	deferredSubscription
	onNext     func(T)
	onError    func(error)
	onComplete func()
	release    func()
	done       atomic.Bool
}

func (l *lambdaSubscriber[T]) OnSubscribe(s Subscription) {
	if l.set(s) {
		s.Request(Unbounded)
	}
}

func (l *lambdaSubscriber[T]) OnNext(v T) {
	if l.done.Load() {
		panic(errors.ProtocolViolation("OnNext after terminal signal"))
	}
	if l.isCancelled() {
		return
	}
	if l.onNext != nil {
		l.onNext(v)
	}
}

// terminated claims the single terminal signal and reports whether the
// callbacks should see it.
func (l *lambdaSubscriber[T]) terminated() bool {
	if !l.done.CompareAndSwap(false, true) {
		panic(errors.ProtocolViolation("terminal signal after terminal signal"))
	}
	l.release()
	return !l.isCancelled()
}

func (l *lambdaSubscriber[T]) OnError(err error) {
	if l.terminated() && l.onError != nil {
		l.onError(err)
	}
}

func (l *lambdaSubscriber[T]) OnComplete() {
	if l.terminated() && l.onComplete != nil {
		l.onComplete()
	}
}

// Drain creates a Runnable that requests one value at a time and sends
// each to sink. A sink error cancels the subscription and is returned.
func Drain[T any](p Publisher[T], sink func(context.Context, T) error) *Runnable {
	return &Runnable{
		run: func(ctx context.Context) error {
			ds := &drainSubscriber[T]{ctx: ctx, sink: sink, done: make(chan struct{})}
			p.Subscribe(ctx, ds)
			select {
			case <-ds.done:
				return ds.err
			case <-ctx.Done():
				ds.Cancel()
				return ctx.Err()
			}
		},
	}
}

type drainSubscriber[T any] struct {
	deferredSubscription
	ctx  context.Context
	sink func(context.Context, T) error
	once sync.Once
	done chan struct{}
	err  error
}

func (d *drainSubscriber[T]) OnSubscribe(s Subscription) {
	if d.set(s) {
		s.Request(1)
	}
}

func (d *drainSubscriber[T]) OnNext(v T) {
	if d.isCancelled() {
		return
	}
	if err := d.sink(d.ctx, v); err != nil {
		d.Cancel()
		d.finish(err)
		return
	}
	d.Request(1)
}

func (d *drainSubscriber[T]) OnError(err error) { d.finish(err) }

func (d *drainSubscriber[T]) OnComplete() { d.finish(nil) }

func (d *drainSubscriber[T]) finish(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
	})
}

// Collect subscribes to p and blocks until it terminates, returning every
// value received. On error the values received so far are returned along
// with the error.
func Collect[T any](ctx context.Context, p Publisher[T]) ([]T, error) {
	var (
		mu     sync.Mutex
		result []T
	)
	err := Drain(p, func(_ context.Context, v T) error {
		mu.Lock()
		result = append(result, v)
		mu.Unlock()
		return nil
	}).Run(ctx)
	mu.Lock()
	defer mu.Unlock()
	return result, err
}

// ForEach pulls all values and calls fn for each. Convenience wrapper around Drain.
func ForEach[T any](ctx context.Context, p Publisher[T], fn func(context.Context, T) error) error {
	return Drain(p, fn).Run(ctx)
}
