package pipeline

import (
	"context"
	"sync"
)

// singleSubscriber is the base of operators that consume the whole upstream
// with unbounded demand and emit at most one value. The value is held until
// downstream has requested it.
type singleSubscriber[I, O any] struct {
	relay[I, O]
	mu        sync.Mutex
	requested bool
	ready     bool
	value     O
	emitted   bool
}

func (s *singleSubscriber[I, O]) OnSubscribe(up Subscription) {
	s.relay.OnSubscribe(up)
	if !s.skipped() {
		up.Request(Unbounded)
	}
}

func (s *singleSubscriber[I, O]) Request(n int64) {
	validateRequest(n)
	s.mu.Lock()
	s.requested = true
	s.mu.Unlock()
	s.tryEmit()
}

// resolve records the final value. Upstream is cancelled when it has not
// finished yet.
func (s *singleSubscriber[I, O]) resolve(v O, cancelUpstream bool) {
	if !s.claim() {
		return
	}
	if cancelUpstream {
		s.upstream.Cancel()
	}
	s.mu.Lock()
	s.value = v
	s.ready = true
	s.mu.Unlock()
	s.tryEmit()
}

func (s *singleSubscriber[I, O]) tryEmit() {
	s.mu.Lock()
	if !s.ready || !s.requested || s.emitted || s.cancelled.Load() {
		s.mu.Unlock()
		return
	}
	s.emitted = true
	v := s.value
	s.mu.Unlock()
	s.actual.OnNext(v)
	if !s.cancelled.Load() {
		s.actual.OnComplete()
	}
}

// Reduce accumulates all values into a single result.
// The pipeline yields exactly one value: the final accumulator.
func Reduce[T, R any](p Publisher[T], init R, fn func(R, T) R) *Pipeline[R] {
	return &Pipeline[R]{
		subscribe: func(ctx context.Context, s Subscriber[R]) {
			r := &reduceSubscriber[T, R]{acc: init, fn: fn}
			r.init(ctx, s, r)
			p.Subscribe(ctx, r)
		},
	}
}

type reduceSubscriber[T, R any] struct {
	singleSubscriber[T, R]
	acc R
	fn  func(R, T) R
}

func (r *reduceSubscriber[T, R]) OnNext(v T) {
	if !r.accept() {
		return
	}
	if err := guard("reduce", func() error {
		r.acc = r.fn(r.acc, v)
		return nil
	}); err != nil {
		r.fail(err)
	}
}

func (r *reduceSubscriber[T, R]) OnComplete() {
	r.upstreamTerminated()
	r.resolve(r.acc, false)
}

// CollectList gathers every value into one slice emitted on completion.
func CollectList[T any](p Publisher[T]) *Pipeline[[]T] {
	return Reduce(p, []T(nil), func(acc []T, v T) []T { return append(acc, v) })
}

// CollectMap gathers values into a map keyed by key. A later value with the
// same key replaces the earlier one.
func CollectMap[T any, K comparable](p Publisher[T], key func(T) K) *Pipeline[map[K]T] {
	return Defer(func() Publisher[map[K]T] {
		return Reduce(p, make(map[K]T), func(acc map[K]T, v T) map[K]T {
			acc[key(v)] = v
			return acc
		})
	})
}

// Count emits the number of values upstream produced.
func Count[T any](p Publisher[T]) *Pipeline[int64] {
	return Reduce(p, int64(0), func(n int64, _ T) int64 { return n + 1 })
}

// All emits true if every value satisfies pred. The first failing value
// short-circuits: upstream is cancelled and false is emitted.
func All[T any](p Publisher[T], pred func(T) bool) *Pipeline[bool] {
	return matchAll(p, pred, true)
}

// Any emits true as soon as a value satisfies pred, cancelling upstream.
func Any[T any](p Publisher[T], pred func(T) bool) *Pipeline[bool] {
	return matchAll(p, pred, false)
}

func matchAll[T any](p Publisher[T], pred func(T) bool, all bool) *Pipeline[bool] {
	return &Pipeline[bool]{
		subscribe: func(ctx context.Context, s Subscriber[bool]) {
			m := &matchSubscriber[T]{pred: pred, all: all}
			m.init(ctx, s, m)
			p.Subscribe(ctx, m)
		},
	}
}

type matchSubscriber[T any] struct {
	singleSubscriber[T, bool]
	pred func(T) bool
	all  bool
}

func (m *matchSubscriber[T]) OnNext(v T) {
	if !m.accept() {
		return
	}
	var ok bool
	op := "any"
	if m.all {
		op = "all"
	}
	if err := guard(op, func() error {
		ok = m.pred(v)
		return nil
	}); err != nil {
		m.fail(err)
		return
	}
	// all short-circuits on the first miss, any on the first hit.
	if ok != m.all {
		m.resolve(ok, true)
	}
}

func (m *matchSubscriber[T]) OnComplete() {
	m.upstreamTerminated()
	m.resolve(m.all, false)
}
