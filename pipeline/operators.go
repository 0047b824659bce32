package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/reactive/errors"
)

// --- Stateless ---

// Map transforms each value using fn. The first error returned by fn
// cancels upstream and is delivered as an operator error.
func Map[I, O any](p Publisher[I], fn func(context.Context, I) (O, error)) *Pipeline[O] {
	return &Pipeline[O]{
		subscribe: func(ctx context.Context, s Subscriber[O]) {
			m := &mapSubscriber[I, O]{fn: fn}
			m.init(ctx, s, m)
			p.Subscribe(ctx, m)
		},
	}
}

type mapSubscriber[I, O any] struct {
	relay[I, O]
	fn func(context.Context, I) (O, error)
}

func (m *mapSubscriber[I, O]) OnNext(v I) {
	if !m.accept() {
		return
	}
	var out O
	if err := guard("map", func() (err error) {
		out, err = m.fn(m.ctx, v)
		return err
	}); err != nil {
		m.fail(err)
		return
	}
	m.emit(out)
}

// Filter keeps only values that satisfy the predicate. Each dropped value
// is replaced by a request for one more.
func Filter[T any](p Publisher[T], fn func(T) bool) *Pipeline[T] {
	return FilterE(p, func(_ context.Context, v T) (bool, error) { return fn(v), nil })
}

// FilterE is Filter with a context-aware predicate that can fail.
func FilterE[T any](p Publisher[T], fn func(context.Context, T) (bool, error)) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			f := &filterSubscriber[T]{fn: fn}
			f.init(ctx, s, f)
			p.Subscribe(ctx, f)
		},
	}
}

type filterSubscriber[T any] struct {
	relay[T, T]
	fn func(context.Context, T) (bool, error)
}

func (f *filterSubscriber[T]) OnNext(v T) {
	if !f.accept() {
		return
	}
	var keep bool
	if err := guard("filter", func() (err error) {
		keep, err = f.fn(f.ctx, v)
		return err
	}); err != nil {
		f.fail(err)
		return
	}
	if keep {
		f.emit(v)
		return
	}
	f.replenish()
}

// Tap calls fn as a side-effect for each value, then passes the value through unchanged.
// Use for logging, metrics, or mid-pipeline publishing.
func Tap[T any](p Publisher[T], fn func(context.Context, T) error) *Pipeline[T] {
	return Map(p, func(ctx context.Context, v T) (T, error) {
		if err := fn(ctx, v); err != nil {
			return v, err
		}
		return v, nil
	})
}

// TapEach applies fn[i] to each element of a []T slice as a side-effect,
// then passes the slice through unchanged. Useful after FanOut.
func TapEach[T any](p Publisher[[]T], fns ...func(context.Context, T) error) *Pipeline[[]T] {
	return Tap(p, func(ctx context.Context, items []T) error {
		for i, item := range items {
			if i >= len(fns) {
				break
			}
			if err := fns[i](ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// FanOut applies multiple functions to each input value in parallel
// and collects all results as a slice, in the order of fns.
func FanOut[I, O any](p Publisher[I], fns ...func(context.Context, I) (O, error)) *Pipeline[[]O] {
	return Map(p, func(ctx context.Context, v I) ([]O, error) {
		results := make([]O, len(fns))
		g, gctx := errgroup.WithContext(ctx)
		for i, fn := range fns {
			g.Go(func() error {
				out, err := fn(gctx, v)
				if err != nil {
					return err
				}
				results[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	})
}

// --- Stateful ---

// Distinct drops values already seen by this subscription. The seen-set
// is unbounded and lives as long as the subscription.
func Distinct[T comparable](p Publisher[T]) *Pipeline[T] {
	return DistinctBy(p, func(v T) T { return v })
}

// DistinctBy drops values whose key has already been seen.
func DistinctBy[T any, K comparable](p Publisher[T], key func(T) K) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			d := &distinctSubscriber[T, K]{key: key, seen: make(map[K]struct{})}
			d.init(ctx, s, d)
			p.Subscribe(ctx, d)
		},
	}
}

type distinctSubscriber[T any, K comparable] struct {
	relay[T, T]
	key  func(T) K
	seen map[K]struct{}
}

func (d *distinctSubscriber[T, K]) OnNext(v T) {
	if !d.accept() {
		return
	}
	var k K
	if err := guard("distinct", func() error {
		k = d.key(v)
		return nil
	}); err != nil {
		d.fail(err)
		return
	}
	if _, dup := d.seen[k]; dup {
		d.replenish()
		return
	}
	d.seen[k] = struct{}{}
	d.emit(v)
}

// Skip drops the first n values. A negative n panics.
func Skip[T any](p Publisher[T], n int) *Pipeline[T] {
	if n < 0 {
		panic(errors.ProtocolViolation("skip count must not be negative").WithDetail("n", n))
	}
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			k := &skipSubscriber[T]{remaining: n}
			k.init(ctx, s, k)
			p.Subscribe(ctx, k)
		},
	}
}

type skipSubscriber[T any] struct {
	relay[T, T]
	remaining int
}

func (k *skipSubscriber[T]) OnNext(v T) {
	if !k.accept() {
		return
	}
	if k.remaining > 0 {
		k.remaining--
		k.replenish()
		return
	}
	k.emit(v)
}

// Take emits the first n values, then completes and cancels upstream.
// Upstream demand never exceeds what remains to be taken. A negative n
// panics.
func Take[T any](p Publisher[T], n int) *Pipeline[T] {
	if n < 0 {
		panic(errors.ProtocolViolation("take count must not be negative").WithDetail("n", n))
	}
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			t := &takeSubscriber[T]{limit: int64(n)}
			t.init(ctx, s, t)
			p.Subscribe(ctx, t)
		},
	}
}

type takeSubscriber[T any] struct {
	relay[T, T]
	limit     int64
	mu        sync.Mutex
	requested int64
	taken     int64
}

func (t *takeSubscriber[T]) OnSubscribe(s Subscription) {
	t.relay.OnSubscribe(s)
	if t.limit == 0 {
		t.complete()
	}
}

func (t *takeSubscriber[T]) Request(n int64) {
	validateRequest(n)
	t.mu.Lock()
	allowed := min(n, t.limit-t.requested)
	t.requested += max(allowed, 0)
	t.mu.Unlock()
	if allowed > 0 {
		t.relay.Request(allowed)
	}
}

func (t *takeSubscriber[T]) OnNext(v T) {
	if !t.accept() {
		return
	}
	t.taken++
	t.emit(v)
	if t.taken >= t.limit {
		t.complete()
	}
}

// Concat joins multiple publishers sequentially. All values from the
// first are emitted before the second is subscribed, and outstanding
// demand carries over from one to the next.
func Concat[T any](publishers ...Publisher[T]) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			c := &concatSubscriber[T]{ctx: ctx, actual: s, sources: publishers}
			s.OnSubscribe(c)
			c.subscribeNext()
		},
	}
}

type concatSubscriber[T any] struct {
	ctx     context.Context
	actual  Subscriber[T]
	sources []Publisher[T]
	index   int

	mu        sync.Mutex
	current   Subscription
	requested int64
	cancelled bool
	done      bool
	// active guards against recursive subscription when sources complete
	// synchronously; missed records a completion that arrived meanwhile.
	active bool
	missed bool
}

func (c *concatSubscriber[T]) subscribeNext() {
	c.mu.Lock()
	if c.active {
		c.missed = true
		c.mu.Unlock()
		return
	}
	c.active = true
	c.mu.Unlock()
	for {
		c.mu.Lock()
		c.missed = false
		if c.cancelled {
			c.active = false
			c.mu.Unlock()
			return
		}
		if c.index >= len(c.sources) {
			c.done = true
			c.active = false
			c.mu.Unlock()
			c.actual.OnComplete()
			return
		}
		src := c.sources[c.index]
		c.index++
		c.current = nil
		c.mu.Unlock()

		src.Subscribe(c.ctx, c)

		c.mu.Lock()
		if !c.missed {
			c.active = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

func (c *concatSubscriber[T]) OnSubscribe(s Subscription) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		s.Cancel()
		return
	}
	c.current = s
	n := c.requested
	c.mu.Unlock()
	if n > 0 {
		s.Request(n)
	}
}

func (c *concatSubscriber[T]) OnNext(v T) {
	c.mu.Lock()
	if c.cancelled || c.done {
		c.mu.Unlock()
		return
	}
	if c.requested != Unbounded {
		c.requested--
	}
	c.mu.Unlock()
	c.actual.OnNext(v)
}

func (c *concatSubscriber[T]) OnError(err error) {
	c.mu.Lock()
	if c.cancelled || c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.mu.Unlock()
	c.actual.OnError(err)
}

func (c *concatSubscriber[T]) OnComplete() {
	c.mu.Lock()
	if c.cancelled || c.done {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.subscribeNext()
}

func (c *concatSubscriber[T]) Request(n int64) {
	validateRequest(n)
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.requested = AddCap(c.requested, n)
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		cur.Request(n)
	}
}

func (c *concatSubscriber[T]) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		cur.Cancel()
	}
}
