package pipeline

import "sync"

// entry is a queued value tagged with the index of the source it came from.
type entry[T any] struct {
	val T
	src int
}

// offerResult reports what happened to a value handed to a bounded outbox.
type offerResult int

const (
	offerAccepted offerResult = iota
	offerDroppedNewest
	offerDroppedOldest
	offerOverflow
	offerRejected
)

// outbox serializes delivery to one downstream subscriber from any number
// of producing goroutines. Values wait in a queue until downstream demand
// allows them through; a terminal signal is delivered once the queue is
// empty (completion) or immediately (error).
//
// Only one goroutine drains at a time. A producer that finds a drain in
// progress marks it missed and returns; the draining goroutine loops again.
type outbox[T any] struct {
	mu         sync.Mutex
	actual     Subscriber[T]
	queue      []entry[T]
	requested  int64
	draining   bool
	missed     bool
	done       bool
	err        error
	terminated bool
	cancelled  bool

	// delivered runs outside the lock after each value reaches downstream.
	delivered func(src int)
	// executor, when set, runs drains instead of the calling goroutine.
	executor func(func())
}

func newOutbox[T any](actual Subscriber[T]) *outbox[T] {
	return &outbox[T]{actual: actual}
}

func (o *outbox[T]) request(n int64) {
	validateRequest(n)
	o.mu.Lock()
	if o.cancelled {
		o.mu.Unlock()
		return
	}
	o.requested = AddCap(o.requested, n)
	o.mu.Unlock()
	o.schedule()
}

// push queues v. It returns false when the outbox no longer accepts values.
func (o *outbox[T]) push(v T, src int) bool {
	o.mu.Lock()
	if o.cancelled || o.done {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, entry[T]{val: v, src: src})
	o.mu.Unlock()
	o.schedule()
	return true
}

// offer queues v while keeping the queue within limit values, applying
// dropOldest or failing with overflow when the limit is reached.
func (o *outbox[T]) offer(v T, limit int, policy OverflowPolicy) offerResult {
	o.mu.Lock()
	if o.cancelled || o.done {
		o.mu.Unlock()
		return offerRejected
	}
	result := offerAccepted
	if limit > 0 && len(o.queue) >= limit {
		switch policy {
		case DropNewest:
			o.mu.Unlock()
			return offerDroppedNewest
		case DropOldest:
			var zero entry[T]
			o.queue[0] = zero
			o.queue = o.queue[1:]
			result = offerDroppedOldest
		default:
			o.mu.Unlock()
			return offerOverflow
		}
	}
	o.queue = append(o.queue, entry[T]{val: v})
	o.mu.Unlock()
	o.schedule()
	return result
}

func (o *outbox[T]) complete() {
	o.mu.Lock()
	if o.done || o.cancelled {
		o.mu.Unlock()
		return
	}
	o.done = true
	o.mu.Unlock()
	o.schedule()
}

// fail discards queued values and delivers err as soon as possible.
func (o *outbox[T]) fail(err error) bool {
	o.mu.Lock()
	if o.done || o.cancelled {
		o.mu.Unlock()
		return false
	}
	o.done = true
	o.err = err
	o.queue = nil
	o.mu.Unlock()
	o.schedule()
	return true
}

func (o *outbox[T]) cancel() {
	o.mu.Lock()
	o.cancelled = true
	o.queue = nil
	o.mu.Unlock()
}

func (o *outbox[T]) isCancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

func (o *outbox[T]) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *outbox[T]) schedule() {
	if o.executor == nil {
		o.drain()
		return
	}
	o.executor(o.drain)
}

func (o *outbox[T]) drain() {
	o.mu.Lock()
	if o.draining {
		o.missed = true
		o.mu.Unlock()
		return
	}
	o.draining = true
	for {
		o.missed = false
		for !o.cancelled && len(o.queue) > 0 && o.requested > 0 {
			e := o.queue[0]
			var zero entry[T]
			o.queue[0] = zero
			o.queue = o.queue[1:]
			if o.requested != Unbounded {
				o.requested--
			}
			o.mu.Unlock()
			o.actual.OnNext(e.val)
			if o.delivered != nil {
				o.delivered(e.src)
			}
			o.mu.Lock()
		}
		if !o.cancelled && !o.terminated && o.done && (o.err != nil || len(o.queue) == 0) {
			o.terminated = true
			err := o.err
			o.mu.Unlock()
			if err != nil {
				o.actual.OnError(err)
			} else {
				o.actual.OnComplete()
			}
			o.mu.Lock()
		}
		if !o.missed {
			break
		}
	}
	o.draining = false
	o.mu.Unlock()
}
