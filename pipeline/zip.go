package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Tuple2 pairs one value from each of two zipped sources.
type Tuple2[A, B any] struct {
	First  A
	Second B
}

// String formats the tuple as [first,second].
func (t Tuple2[A, B]) String() string {
	return fmt.Sprintf("[%v,%v]", t.First, t.Second)
}

// Zip2 pairs the n-th value of a with the n-th value of b.
func Zip2[A, B any](a Publisher[A], b Publisher[B]) *Pipeline[Tuple2[A, B]] {
	return ZipWith(a, b, func(x A, y B) (Tuple2[A, B], error) {
		return Tuple2[A, B]{First: x, Second: y}, nil
	})
}

// ZipWith combines the n-th values of a and b with fn. An error from fn
// terminates the stream with an operator error.
func ZipWith[A, B, R any](a Publisher[A], b Publisher[B], fn func(A, B) (R, error)) *Pipeline[R] {
	sources := []Publisher[any]{boxed(a), boxed(b)}
	return zip(sources, func(row []any) (R, error) {
		return fn(row[0].(A), row[1].(B))
	})
}

// ZipN zips any number of same-typed sources into slices.
func ZipN[T any](publishers ...Publisher[T]) *Pipeline[[]T] {
	sources := make([]Publisher[any], len(publishers))
	for i, p := range publishers {
		sources[i] = boxed(p)
	}
	return zip(sources, func(row []any) ([]T, error) {
		out := make([]T, len(row))
		for i, v := range row {
			out[i] = v.(T)
		}
		return out, nil
	})
}

// boxed erases the element type so heterogeneous sources share one queue
// layout inside zip.
func boxed[T any](p Publisher[T]) Publisher[any] {
	if b, ok := p.(Publisher[any]); ok {
		return b
	}
	return &Pipeline[any]{
		subscribe: func(ctx context.Context, s Subscriber[any]) {
			p.Subscribe(ctx, &boxSubscriber[T]{actual: s})
		},
	}
}

type boxSubscriber[T any] struct {
	actual Subscriber[any]
}

func (b *boxSubscriber[T]) OnSubscribe(s Subscription) { b.actual.OnSubscribe(s) }
func (b *boxSubscriber[T]) OnNext(v T)                 { b.actual.OnNext(v) }
func (b *boxSubscriber[T]) OnError(err error)          { b.actual.OnError(err) }
func (b *boxSubscriber[T]) OnComplete()                { b.actual.OnComplete() }

// zip keeps one queue per source and emits a combined row, in source
// order, whenever every queue holds a value and downstream has demand. It
// completes as soon as any source has completed with an empty queue,
// cancelling the others and discarding their queued values.
func zip[R any](sources []Publisher[any], combine func([]any) (R, error)) *Pipeline[R] {
	prefetch := int64(CurrentDefaults().Prefetch)
	return &Pipeline[R]{
		subscribe: func(ctx context.Context, s Subscriber[R]) {
			if len(sources) == 0 {
				s.OnSubscribe(emptySubscription{})
				s.OnComplete()
				return
			}
			z := &zipMain[R]{
				actual:   s,
				combine:  combine,
				prefetch: prefetch,
				queues:   make([][]any, len(sources)),
				done:     make([]bool, len(sources)),
				inners:   make([]*zipInner[R], len(sources)),
			}
			for i := range sources {
				z.inners[i] = &zipInner[R]{main: z, index: i}
			}
			s.OnSubscribe(z)
			for i, src := range sources {
				if z.isStopped() {
					return
				}
				src.Subscribe(ctx, z.inners[i])
			}
		},
	}
}

type zipMain[R any] struct {
	actual   Subscriber[R]
	combine  func([]any) (R, error)
	prefetch int64
	inners   []*zipInner[R]

	mu         sync.Mutex
	queues     [][]any
	done       []bool
	requested  int64
	err        error
	terminated bool
	cancelled  bool
	draining   bool
	missed     bool
}

func (z *zipMain[R]) isStopped() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.terminated || z.cancelled
}

func (z *zipMain[R]) Request(n int64) {
	validateRequest(n)
	z.mu.Lock()
	z.requested = AddCap(z.requested, n)
	z.mu.Unlock()
	z.drain()
}

func (z *zipMain[R]) Cancel() {
	z.mu.Lock()
	z.cancelled = true
	z.queues = nil
	z.mu.Unlock()
	z.cancelInners()
}

func (z *zipMain[R]) cancelInners() {
	for _, in := range z.inners {
		in.Cancel()
	}
}

func (z *zipMain[R]) push(i int, v any) {
	z.mu.Lock()
	if z.cancelled || z.terminated {
		z.mu.Unlock()
		return
	}
	z.queues[i] = append(z.queues[i], v)
	z.mu.Unlock()
	z.drain()
}

func (z *zipMain[R]) complete(i int) {
	z.mu.Lock()
	if z.cancelled || z.terminated {
		z.mu.Unlock()
		return
	}
	z.done[i] = true
	z.mu.Unlock()
	z.drain()
}

func (z *zipMain[R]) fail(err error) {
	z.mu.Lock()
	if z.cancelled || z.terminated || z.err != nil {
		z.mu.Unlock()
		return
	}
	z.err = err
	z.mu.Unlock()
	z.drain()
}

// readyLocked reports whether every queue holds at least one value.
func (z *zipMain[R]) readyLocked() bool {
	for _, q := range z.queues {
		if len(q) == 0 {
			return false
		}
	}
	return true
}

// exhaustedLocked reports whether some source finished with nothing queued.
func (z *zipMain[R]) exhaustedLocked() bool {
	for i, q := range z.queues {
		if z.done[i] && len(q) == 0 {
			return true
		}
	}
	return false
}

func (z *zipMain[R]) drain() {
	z.mu.Lock()
	if z.draining {
		z.missed = true
		z.mu.Unlock()
		return
	}
	z.draining = true
	for {
		z.missed = false
		for !z.cancelled && !z.terminated && z.err == nil && z.requested > 0 && z.readyLocked() {
			row := make([]any, len(z.queues))
			for i := range z.queues {
				row[i] = z.queues[i][0]
				z.queues[i][0] = nil
				z.queues[i] = z.queues[i][1:]
			}
			if z.requested != Unbounded {
				z.requested--
			}
			z.mu.Unlock()

			var out R
			err := guard("zip", func() (err error) {
				out, err = z.combine(row)
				return err
			})
			if err != nil {
				z.mu.Lock()
				if z.err == nil {
					z.err = err
				}
				break
			}
			z.actual.OnNext(out)
			for _, in := range z.inners {
				in.Request(1)
			}
			z.mu.Lock()
		}
		if !z.cancelled && !z.terminated && (z.err != nil || z.exhaustedLocked()) {
			z.terminated = true
			err := z.err
			z.queues = nil
			z.mu.Unlock()
			z.cancelInners()
			if err != nil {
				z.actual.OnError(err)
			} else {
				z.actual.OnComplete()
			}
			z.mu.Lock()
		}
		if !z.missed {
			break
		}
	}
	z.draining = false
	z.mu.Unlock()
}

type zipInner[R any] struct {
	deferredSubscription
	main  *zipMain[R]
	index int
}

func (in *zipInner[R]) OnSubscribe(s Subscription) {
	if in.set(s) {
		s.Request(in.main.prefetch)
	}
}

func (in *zipInner[R]) OnNext(v any) {
	if !in.isCancelled() {
		in.main.push(in.index, v)
	}
}

func (in *zipInner[R]) OnError(err error) {
	if !in.isCancelled() {
		in.main.fail(err)
	}
}

func (in *zipInner[R]) OnComplete() {
	if !in.isCancelled() {
		in.main.complete(in.index)
	}
}
