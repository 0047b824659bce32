package pipeline

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/kbukum/reactive/errors"
)

// Unbounded is the demand value meaning "send everything". Demand
// additions saturate at Unbounded.
const Unbounded int64 = math.MaxInt64

// AddCap adds two non-negative demands, saturating at Unbounded. Operators
// built outside this package use it to track demand the same way.
func AddCap(a, b int64) int64 {
	if a == Unbounded || b == Unbounded {
		return Unbounded
	}
	r := a + b
	if r < 0 {
		return Unbounded
	}
	return r
}

// multiplyCap multiplies two positive demands, saturating at Unbounded.
func multiplyCap(a, b int64) int64 {
	if a == Unbounded || b == Unbounded {
		return Unbounded
	}
	if a != 0 && b > Unbounded/a {
		return Unbounded
	}
	return a * b
}

// validateRequest panics with a protocol violation for non-positive demand.
func validateRequest(n int64) {
	if n <= 0 {
		panic(errors.ProtocolViolation("request amount must be positive").WithDetail("n", n))
	}
}

// addDemand atomically adds n to the counter and returns the previous value.
func addDemand(counter *atomic.Int64, n int64) int64 {
	for {
		cur := counter.Load()
		if cur == Unbounded {
			return Unbounded
		}
		if counter.CompareAndSwap(cur, AddCap(cur, n)) {
			return cur
		}
	}
}

// producedDemand atomically subtracts n unless demand is Unbounded and
// returns the remaining demand.
func producedDemand(counter *atomic.Int64, n int64) int64 {
	for {
		cur := counter.Load()
		if cur == Unbounded {
			return Unbounded
		}
		next := cur - n
		if next < 0 {
			next = 0
		}
		if counter.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// emptySubscription is handed to subscribers of sources that terminate
// without ever producing a value.
type emptySubscription struct{}

func (emptySubscription) Request(n int64) { validateRequest(n) }
func (emptySubscription) Cancel()         {}

// deferredSubscription accumulates demand and cancellation until the real
// upstream subscription arrives through set.
type deferredSubscription struct {
	mu        sync.Mutex
	upstream  Subscription
	pending   int64
	cancelled bool
}

// set installs the upstream and replays pending demand. It returns false
// (and cancels s) when the deferred subscription was already cancelled.
func (d *deferredSubscription) set(s Subscription) bool {
	d.mu.Lock()
	if d.cancelled {
		d.mu.Unlock()
		s.Cancel()
		return false
	}
	if d.upstream != nil {
		d.mu.Unlock()
		s.Cancel()
		panic(errors.ProtocolViolation("OnSubscribe called more than once"))
	}
	d.upstream = s
	n := d.pending
	d.pending = 0
	d.mu.Unlock()
	if n > 0 {
		s.Request(n)
	}
	return true
}

func (d *deferredSubscription) Request(n int64) {
	validateRequest(n)
	d.mu.Lock()
	if d.cancelled {
		d.mu.Unlock()
		return
	}
	up := d.upstream
	if up == nil {
		d.pending = AddCap(d.pending, n)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	up.Request(n)
}

func (d *deferredSubscription) Cancel() {
	d.mu.Lock()
	if d.cancelled {
		d.mu.Unlock()
		return
	}
	d.cancelled = true
	up := d.upstream
	d.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
}

func (d *deferredSubscription) isCancelled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelled
}

// relay is the shared plumbing of single-upstream operators: it forwards
// demand and cancellation upstream and guards downstream against signals
// after a terminal or a cancel. Operators embed it, implement OnNext and
// register themselves as self so overridden Request/Cancel methods are the
// ones handed downstream.
//
// OnNext runs on the upstream's goroutine while timers may end the stream
// from another one. A terminal claimed while a value is being delivered is
// parked and handed downstream by the emitting goroutine once OnNext
// returns, so downstream never sees overlapping signals.
type relay[I, O any] struct {
	ctx          context.Context
	actual       Subscriber[O]
	self         Subscription
	upstream     Subscription
	cancelled    atomic.Bool
	upstreamDone atomic.Bool

	mu       sync.Mutex
	done     bool
	emitting int
	parked   *terminal
}

// terminal is a deferred OnError (err != nil) or OnComplete.
type terminal struct {
	err error
}

func (r *relay[I, O]) init(ctx context.Context, actual Subscriber[O], self Subscription) {
	r.ctx = ctx
	r.actual = actual
	r.self = self
}

func (r *relay[I, O]) OnSubscribe(s Subscription) {
	if r.upstream != nil {
		s.Cancel()
		panic(errors.ProtocolViolation("OnSubscribe called more than once"))
	}
	r.upstream = s
	r.actual.OnSubscribe(r.self)
}

func (r *relay[I, O]) OnError(err error) {
	r.upstreamTerminated()
	r.terminate(err, false)
}

func (r *relay[I, O]) OnComplete() {
	r.upstreamTerminated()
	r.terminate(nil, false)
}

func (r *relay[I, O]) Request(n int64) {
	validateRequest(n)
	if r.cancelled.Load() {
		return
	}
	r.upstream.Request(n)
}

func (r *relay[I, O]) Cancel() {
	if r.cancelled.CompareAndSwap(false, true) {
		r.upstream.Cancel()
	}
}

// upstreamTerminated records the upstream's terminal signal. A second
// terminal from the same upstream is a protocol violation.
func (r *relay[I, O]) upstreamTerminated() {
	if !r.upstreamDone.CompareAndSwap(false, true) {
		panic(errors.ProtocolViolation("terminal signal after terminal signal"))
	}
}

// accept is called first by every OnNext. It panics when upstream sends a
// value after its own terminal and reports whether the value should be
// processed. Values racing a cancel or an early terminal are dropped.
func (r *relay[I, O]) accept() bool {
	if r.upstreamDone.Load() {
		panic(errors.ProtocolViolation("OnNext after terminal signal"))
	}
	return !r.skipped()
}

// skipped reports whether the relay has terminated or been cancelled.
func (r *relay[I, O]) skipped() bool {
	if r.cancelled.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// emit forwards a value downstream unless the relay has terminated.
func (r *relay[I, O]) emit(v O) {
	r.mu.Lock()
	if r.done || r.cancelled.Load() {
		r.mu.Unlock()
		return
	}
	r.emitting++
	r.mu.Unlock()

	r.actual.OnNext(v)

	r.mu.Lock()
	r.emitting--
	var t *terminal
	if r.emitting == 0 && r.parked != nil {
		t, r.parked = r.parked, nil
	}
	r.mu.Unlock()
	if t != nil {
		r.deliver(t.err)
	}
}

// claim marks the relay terminated without signalling downstream. It
// reports false when a terminal or cancel got there first.
func (r *relay[I, O]) claim() bool {
	if r.cancelled.Load() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return false
	}
	r.done = true
	return true
}

// terminate delivers OnError (err != nil) or OnComplete exactly once,
// parking it while another goroutine is inside OnNext.
func (r *relay[I, O]) terminate(err error, cancelUpstream bool) {
	r.mu.Lock()
	if r.done || r.cancelled.Load() {
		r.mu.Unlock()
		return
	}
	r.done = true
	if r.emitting > 0 {
		r.parked = &terminal{err: err}
		r.mu.Unlock()
		if cancelUpstream {
			r.upstream.Cancel()
		}
		return
	}
	r.mu.Unlock()
	if cancelUpstream {
		r.upstream.Cancel()
	}
	r.deliver(err)
}

func (r *relay[I, O]) deliver(err error) {
	if r.cancelled.Load() {
		return
	}
	if err != nil {
		r.actual.OnError(err)
		return
	}
	r.actual.OnComplete()
}

// fail cancels upstream and delivers err downstream.
func (r *relay[I, O]) fail(err error) {
	r.terminate(err, true)
}

// complete cancels upstream and completes downstream early.
func (r *relay[I, O]) complete() {
	r.terminate(nil, true)
}

// replenish asks upstream for one value to replace a dropped one.
func (r *relay[I, O]) replenish() {
	if r.skipped() {
		return
	}
	r.upstream.Request(1)
}

// guard runs fn and converts a panic into an operator error.
func guard(operator string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.OperatorPanic(operator, rec)
		}
	}()
	if err := fn(); err != nil {
		return errors.Operator(operator, err)
	}
	return nil
}
