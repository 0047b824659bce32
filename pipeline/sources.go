package pipeline

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/kbukum/reactive/errors"
)

// pullSubscription emits values pulled from next as demand allows. It is
// reentrancy-safe: a Request made from inside OnNext only adds demand and
// the running emission loop picks it up.
//
// next and release are never called concurrently. A Cancel that finds an
// emission loop running only flags the subscription; the loop releases the
// source on its way out.
type pullSubscription[T any] struct {
	ctx    context.Context
	actual Subscriber[T]
	source string
	next   func(ctx context.Context) (T, bool, error)
	// exhausted, if set, lets the source complete right after its last
	// value without waiting for more demand.
	exhausted func() bool
	release   func()

	requested atomic.Int64
	cancelled atomic.Bool
	released  atomic.Bool
	emitting  atomic.Int32
}

func (s *pullSubscription[T]) Request(n int64) {
	validateRequest(n)
	if s.cancelled.Load() {
		return
	}
	if addDemand(&s.requested, n) > 0 {
		return
	}
	s.emitLoop()
}

func (s *pullSubscription[T]) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) && s.emitting.Load() == 0 {
		s.stop()
	}
}

func (s *pullSubscription[T]) stop() {
	if s.release != nil && s.released.CompareAndSwap(false, true) {
		s.release()
	}
}

// leave ends an emission loop and releases the source when a Cancel
// arrived while it ran.
func (s *pullSubscription[T]) leave() {
	if s.emitting.Add(-1) == 0 && s.cancelled.Load() {
		s.stop()
	}
}

func (s *pullSubscription[T]) emitLoop() {
	s.emitting.Add(1)
	defer s.leave()
	var emitted int64
	for {
		r := s.requested.Load()
		for emitted != r {
			if s.cancelled.Load() {
				return
			}
			v, ok, err := s.next(s.ctx)
			if s.cancelled.Load() {
				return
			}
			if err != nil {
				s.terminate(errors.Upstream(s.source, err))
				return
			}
			if !ok {
				s.terminate(nil)
				return
			}
			s.actual.OnNext(v)
			emitted++
			if s.exhausted != nil && s.exhausted() {
				s.terminate(nil)
				return
			}
		}
		if s.cancelled.Load() {
			return
		}
		if r == Unbounded {
			continue
		}
		if producedDemand(&s.requested, emitted) == 0 {
			return
		}
		emitted = 0
	}
}

func (s *pullSubscription[T]) terminate(err error) {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.stop()
	if err != nil {
		s.actual.OnError(err)
		return
	}
	s.actual.OnComplete()
}

// subscribePull wires a pullSubscription to s, completing immediately when
// the source is already exhausted.
func subscribePull[T any](ctx context.Context, s Subscriber[T], ps *pullSubscription[T]) {
	ps.ctx = ctx
	ps.actual = s
	s.OnSubscribe(ps)
	if ps.exhausted != nil && ps.exhausted() {
		ps.terminate(nil)
	}
}

// --- Constructors ---

// Just creates a pipeline that emits the given values in order.
func Just[T any](values ...T) *Pipeline[T] {
	return FromSlice(values)
}

// FromSlice creates a pipeline from a slice of values. Each subscription
// replays the slice from the first element.
func FromSlice[T any](items []T) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			index := 0
			subscribePull(ctx, s, &pullSubscription[T]{
				source: "slice",
				next: func(_ context.Context) (T, bool, error) {
					if index >= len(items) {
						var zero T
						return zero, false, nil
					}
					v := items[index]
					index++
					return v, true, nil
				},
				exhausted: func() bool { return index >= len(items) },
			})
		},
	}
}

// Range emits count consecutive integers starting at start.
func Range(start, count int) *Pipeline[int] {
	if count < 0 {
		panic(errors.ProtocolViolation("range count must not be negative").WithDetail("count", count))
	}
	return &Pipeline[int]{
		subscribe: func(ctx context.Context, s Subscriber[int]) {
			i := 0
			subscribePull(ctx, s, &pullSubscription[int]{
				source: "range",
				next: func(_ context.Context) (int, bool, error) {
					if i >= count {
						return 0, false, nil
					}
					v := start + i
					i++
					return v, true, nil
				},
				exhausted: func() bool { return i >= count },
			})
		},
	}
}

// FromSeq creates a pipeline from a Go iterator sequence, pulled on demand.
func FromSeq[T any](seq iter.Seq[T]) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			next, stop := iter.Pull(seq)
			subscribePull(ctx, s, &pullSubscription[T]{
				source: "seq",
				next: func(_ context.Context) (T, bool, error) {
					v, ok := next()
					return v, ok, nil
				},
				release: stop,
			})
		},
	}
}

// FromIterator creates a pipeline from an existing Iterator. The iterator is
// shared, so only the first subscription sees its values.
func FromIterator[T any](it Iterator[T]) *Pipeline[T] {
	return FromFunc(func(_ context.Context) Iterator[T] { return it })
}

// FromFunc creates a pipeline from a factory that produces an Iterator per
// subscription. Iterator errors surface as upstream errors and the iterator
// is closed when the subscription ends.
func FromFunc[T any](fn func(ctx context.Context) Iterator[T]) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			it := fn(ctx)
			subscribePull(ctx, s, &pullSubscription[T]{
				source:  "iterator",
				next:    it.Next,
				release: func() { _ = it.Close() },
			})
		},
	}
}

// FromCallable emits the single value returned by fn, calling it on first
// demand. An *errors.AppError returned by fn is delivered as is; any other
// error is wrapped as an upstream error.
func FromCallable[T any](fn func(ctx context.Context) (T, error)) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			called := false
			ps := &pullSubscription[T]{source: "callable"}
			ps.next = func(ctx context.Context) (T, bool, error) {
				var zero T
				if called {
					return zero, false, nil
				}
				called = true
				v, err := fn(ctx)
				if err != nil {
					if appErr, ok := errors.AsAppError(err); ok {
						ps.terminate(appErr)
						return zero, false, nil
					}
					return zero, false, err
				}
				return v, true, nil
			}
			ps.exhausted = func() bool { return called }
			subscribePull(ctx, s, ps)
		},
	}
}

// Empty completes immediately without emitting.
func Empty[T any]() *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(_ context.Context, s Subscriber[T]) {
			s.OnSubscribe(emptySubscription{})
			s.OnComplete()
		},
	}
}

// Error fails immediately with err.
func Error[T any](err error) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(_ context.Context, s Subscriber[T]) {
			s.OnSubscribe(emptySubscription{})
			s.OnError(err)
		},
	}
}

// Never emits nothing and never terminates.
func Never[T any]() *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(_ context.Context, s Subscriber[T]) {
			s.OnSubscribe(emptySubscription{})
		},
	}
}

// Defer calls factory for every subscription and subscribes to the
// publisher it returns.
func Defer[T any](factory func() Publisher[T]) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			factory().Subscribe(ctx, s)
		},
	}
}
