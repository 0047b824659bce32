package pipeline

import (
	"context"
	"sync/atomic"
)

// FirstWithSignal subscribes to the sources in order and mirrors the first
// one to produce any signal (value, completion or error). The winner is
// decided exactly once; every other source is cancelled.
func FirstWithSignal[T any](sources ...Publisher[T]) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			if len(sources) == 0 {
				s.OnSubscribe(emptySubscription{})
				s.OnComplete()
				return
			}
			r := &raceMain[T]{actual: s}
			r.winner.Store(-1)
			r.inners = make([]*raceInner[T], len(sources))
			for i := range sources {
				r.inners[i] = &raceInner[T]{main: r, index: int32(i)}
			}
			s.OnSubscribe(r)
			for i, src := range sources {
				if r.winner.Load() >= 0 || r.cancelled.Load() {
					return
				}
				src.Subscribe(ctx, r.inners[i])
			}
		},
	}
}

type raceMain[T any] struct {
	actual    Subscriber[T]
	inners    []*raceInner[T]
	winner    atomic.Int32
	cancelled atomic.Bool
}

// tryWin returns true if index is (or has just become) the winner.
func (r *raceMain[T]) tryWin(index int32) bool {
	if w := r.winner.Load(); w >= 0 {
		return w == index
	}
	if !r.winner.CompareAndSwap(-1, index) {
		return r.winner.Load() == index
	}
	for i, in := range r.inners {
		if int32(i) != index {
			in.Cancel()
		}
	}
	return true
}

func (r *raceMain[T]) Request(n int64) {
	validateRequest(n)
	if w := r.winner.Load(); w >= 0 {
		r.inners[w].Request(n)
		return
	}
	for _, in := range r.inners {
		in.Request(n)
	}
}

func (r *raceMain[T]) Cancel() {
	if r.cancelled.CompareAndSwap(false, true) {
		for _, in := range r.inners {
			in.Cancel()
		}
	}
}

type raceInner[T any] struct {
	deferredSubscription
	main  *raceMain[T]
	index int32
}

func (in *raceInner[T]) OnSubscribe(s Subscription) { in.set(s) }

func (in *raceInner[T]) OnNext(v T) {
	if in.main.tryWin(in.index) && !in.main.cancelled.Load() {
		in.main.actual.OnNext(v)
	}
}

func (in *raceInner[T]) OnError(err error) {
	if in.main.tryWin(in.index) && !in.main.cancelled.Load() {
		in.main.actual.OnError(err)
	}
}

func (in *raceInner[T]) OnComplete() {
	if in.main.tryWin(in.index) && !in.main.cancelled.Load() {
		in.main.actual.OnComplete()
	}
}
