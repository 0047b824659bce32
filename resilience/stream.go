package resilience

import (
	"context"
	"sync"

	"github.com/kbukum/reactive/errors"
	"github.com/kbukum/reactive/pipeline"
	"github.com/kbukum/reactive/scheduler"
)

// Retry resubscribes to p after it fails, waiting between attempts as the
// policy's backoff dictates on sched. Values delivered before a failure are
// not replayed and count against downstream demand. Once the policy gives
// up, the last error is forwarded unchanged.
func Retry[T any](p pipeline.Publisher[T], policy RetryPolicy, sched scheduler.Scheduler) *pipeline.Pipeline[T] {
	policy = policy.Normalize()
	return pipeline.New(func(ctx context.Context, s pipeline.Subscriber[T]) {
		r := &retrySubscriber[T]{ctx: ctx, src: p, actual: s, policy: policy, sched: sched}
		s.OnSubscribe(r)
		r.resubscribe()
	})
}

type retrySubscriber[T any] struct {
	ctx    context.Context
	src    pipeline.Publisher[T]
	actual pipeline.Subscriber[T]
	policy RetryPolicy
	sched  scheduler.Scheduler

	mu        sync.Mutex
	upstream  pipeline.Subscription
	requested int64
	attempt   int
	gen       int
	timer     scheduler.CancelFunc
	cancelled bool
}

func (r *retrySubscriber[T]) resubscribe() {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	r.gen++
	r.attempt++
	r.timer = nil
	in := &retryAttempt[T]{parent: r, gen: r.gen}
	r.mu.Unlock()

	r.src.Subscribe(r.ctx, in)
}

// current reports whether signals of attempt gen should reach downstream.
// The caller holds mu.
func (r *retrySubscriber[T]) current(gen int) bool {
	return !r.cancelled && gen == r.gen
}

func (r *retrySubscriber[T]) Request(n int64) {
	if n <= 0 {
		panic(errors.ProtocolViolation("request amount must be positive").WithDetail("n", n))
	}
	r.mu.Lock()
	r.requested = pipeline.AddCap(r.requested, n)
	up := r.upstream
	r.mu.Unlock()
	if up != nil {
		up.Request(n)
	}
}

func (r *retrySubscriber[T]) Cancel() {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	up, timer := r.upstream, r.timer
	r.upstream, r.timer = nil, nil
	r.mu.Unlock()

	if timer != nil {
		timer()
	}
	if up != nil {
		up.Cancel()
	}
}

type retryAttempt[T any] struct {
	parent *retrySubscriber[T]
	gen    int
}

func (a *retryAttempt[T]) OnSubscribe(s pipeline.Subscription) {
	r := a.parent
	r.mu.Lock()
	if !r.current(a.gen) {
		r.mu.Unlock()
		s.Cancel()
		return
	}
	r.upstream = s
	n := r.requested
	r.mu.Unlock()
	if n > 0 {
		s.Request(n)
	}
}

func (a *retryAttempt[T]) OnNext(v T) {
	r := a.parent
	r.mu.Lock()
	if !r.current(a.gen) {
		r.mu.Unlock()
		return
	}
	if r.requested != pipeline.Unbounded && r.requested > 0 {
		r.requested--
	}
	r.mu.Unlock()
	r.actual.OnNext(v)
}

func (a *retryAttempt[T]) OnError(err error) {
	r := a.parent
	r.mu.Lock()
	if !r.current(a.gen) {
		r.mu.Unlock()
		return
	}
	r.upstream = nil
	attempt := r.attempt
	if !r.policy.ShouldRetry(attempt, err) {
		r.gen++
		r.mu.Unlock()
		r.actual.OnError(err)
		return
	}
	delay := r.policy.Backoff.Delay(attempt)
	r.mu.Unlock()

	if r.policy.OnRetry != nil {
		r.policy.OnRetry(attempt, err, delay)
	}
	timer := r.sched.ScheduleAfter(delay, r.resubscribe)

	r.mu.Lock()
	cancelled := r.cancelled
	// resubscribe may already have run on a synchronous scheduler.
	if !cancelled && r.gen == a.gen {
		r.timer = timer
	}
	r.mu.Unlock()
	if cancelled {
		timer()
	}
}

func (a *retryAttempt[T]) OnComplete() {
	r := a.parent
	r.mu.Lock()
	if !r.current(a.gen) {
		r.mu.Unlock()
		return
	}
	r.gen++
	r.upstream = nil
	r.mu.Unlock()
	r.actual.OnComplete()
}
