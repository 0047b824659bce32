package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kbukum/reactive/scheduler"
)

// FlatMapOption configures FlatMap and Merge.
type FlatMapOption func(*flatMapConfig)

type flatMapConfig struct {
	concurrency int
	prefetch    int
}

// WithConcurrency sets how many inner publishers are subscribed at once.
func WithConcurrency(n int) FlatMapOption {
	return func(c *flatMapConfig) { c.concurrency = n }
}

// WithPrefetch sets how many values are requested ahead from each inner
// publisher.
func WithPrefetch(n int) FlatMapOption {
	return func(c *flatMapConfig) { c.prefetch = n }
}

func resolveFlatMap(opts []FlatMapOption) flatMapConfig {
	d := CurrentDefaults()
	cfg := flatMapConfig{concurrency: d.Concurrency, prefetch: d.Prefetch}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = d.Concurrency
	}
	if cfg.prefetch <= 0 {
		cfg.prefetch = d.Prefetch
	}
	return cfg
}

// --- Scheduling ---

// SubscribeOn subscribes to p, and forwards later demand to it, from a
// task on sched. Values are emitted on whichever goroutine the source
// emits on.
func SubscribeOn[T any](p Publisher[T], sched scheduler.Scheduler) *Pipeline[T] {
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			so := &subscribeOnSubscriber[T]{actual: s, sched: sched}
			s.OnSubscribe(so)
			cancel := sched.Schedule(func() {
				if !so.isCancelled() {
					p.Subscribe(ctx, so)
				}
			})
			so.setTask(cancel)
		},
	}
}

type subscribeOnSubscriber[T any] struct {
	deferredSubscription
	actual Subscriber[T]
	sched  scheduler.Scheduler
	ready  atomic.Bool
	task   atomic.Pointer[scheduler.CancelFunc]
}

func (so *subscribeOnSubscriber[T]) setTask(cancel scheduler.CancelFunc) {
	so.task.Store(&cancel)
	if so.isCancelled() {
		cancel()
	}
}

func (so *subscribeOnSubscriber[T]) OnSubscribe(s Subscription) {
	if so.set(s) {
		so.ready.Store(true)
	}
}

func (so *subscribeOnSubscriber[T]) OnNext(v T) {
	if !so.isCancelled() {
		so.actual.OnNext(v)
	}
}

func (so *subscribeOnSubscriber[T]) OnError(err error) {
	if !so.isCancelled() {
		so.actual.OnError(err)
	}
}

func (so *subscribeOnSubscriber[T]) OnComplete() {
	if !so.isCancelled() {
		so.actual.OnComplete()
	}
}

func (so *subscribeOnSubscriber[T]) Request(n int64) {
	validateRequest(n)
	if !so.ready.Load() {
		so.deferredSubscription.Request(n)
		return
	}
	so.sched.Schedule(func() { so.deferredSubscription.Request(n) })
}

func (so *subscribeOnSubscriber[T]) Cancel() {
	if task := so.task.Load(); task != nil {
		(*task)()
	}
	so.deferredSubscription.Cancel()
}

// PublishOn delivers every signal of p to the downstream subscriber from
// tasks on sched, keeping them serialized and in order. Up to the default
// prefetch values are requested ahead.
func PublishOn[T any](p Publisher[T], sched scheduler.Scheduler) *Pipeline[T] {
	prefetch := int64(CurrentDefaults().Prefetch)
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			po := &publishOnSubscriber[T]{box: newOutbox(s), prefetch: prefetch}
			po.box.executor = func(task func()) { sched.Schedule(task) }
			po.box.delivered = func(int) { po.upstream.Request(1) }
			p.Subscribe(ctx, po)
		},
	}
}

type publishOnSubscriber[T any] struct {
	box      *outbox[T]
	upstream Subscription
	prefetch int64
}

func (po *publishOnSubscriber[T]) OnSubscribe(s Subscription) {
	po.upstream = s
	po.box.actual.OnSubscribe(po)
	s.Request(po.prefetch)
}

func (po *publishOnSubscriber[T]) OnNext(v T)        { po.box.push(v, 0) }
func (po *publishOnSubscriber[T]) OnError(err error) { po.box.fail(err) }
func (po *publishOnSubscriber[T]) OnComplete()       { po.box.complete() }
func (po *publishOnSubscriber[T]) Request(n int64)   { po.box.request(n) }

func (po *publishOnSubscriber[T]) Cancel() {
	po.box.cancel()
	po.upstream.Cancel()
}

// --- FlatMap ---

// FlatMap maps each value to an inner publisher and merges the values of
// all inner publishers into one stream. Up to the configured concurrency
// of inners are subscribed at once; values interleave in arrival order.
// The stream completes once upstream and every inner have completed. The
// first error from fn, upstream or any inner cancels everything else.
func FlatMap[I, O any](p Publisher[I], fn func(context.Context, I) (Publisher[O], error), opts ...FlatMapOption) *Pipeline[O] {
	cfg := resolveFlatMap(opts)
	return &Pipeline[O]{
		subscribe: func(ctx context.Context, s Subscriber[O]) {
			m := &flatMapMain[I, O]{
				ctx:    ctx,
				fn:     fn,
				cfg:    cfg,
				box:    newOutbox(s),
				inners: make(map[int]*flatMapInner[I, O]),
			}
			m.box.delivered = m.replenish
			p.Subscribe(ctx, m)
		},
	}
}

type flatMapMain[I, O any] struct {
	ctx context.Context
	fn  func(context.Context, I) (Publisher[O], error)
	cfg flatMapConfig
	box *outbox[O]

	mu        sync.Mutex
	upstream  Subscription
	inners    map[int]*flatMapInner[I, O]
	nextID    int
	outerDone bool
	finished  bool
}

func (m *flatMapMain[I, O]) OnSubscribe(s Subscription) {
	m.mu.Lock()
	m.upstream = s
	m.mu.Unlock()
	m.box.actual.OnSubscribe(m)
	if !m.box.isCancelled() {
		s.Request(int64(m.cfg.concurrency))
	}
}

func (m *flatMapMain[I, O]) OnNext(v I) {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	var inner Publisher[O]
	if err := guard("flatMap", func() (err error) {
		inner, err = m.fn(m.ctx, v)
		return err
	}); err != nil {
		m.fail(err)
		return
	}

	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	id := m.nextID
	m.nextID++
	in := &flatMapInner[I, O]{main: m, id: id}
	m.inners[id] = in
	m.mu.Unlock()

	inner.Subscribe(m.ctx, in)
}

func (m *flatMapMain[I, O]) OnError(err error) { m.fail(err) }

func (m *flatMapMain[I, O]) OnComplete() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.outerDone = true
	done := len(m.inners) == 0
	if done {
		m.finished = true
	}
	m.mu.Unlock()
	if done {
		m.box.complete()
	}
}

func (m *flatMapMain[I, O]) innerComplete(in *flatMapInner[I, O]) {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	delete(m.inners, in.id)
	done := m.outerDone && len(m.inners) == 0
	if done {
		m.finished = true
	}
	up := m.upstream
	m.mu.Unlock()
	if done {
		m.box.complete()
		return
	}
	if !m.outerDone {
		up.Request(1)
	}
}

// fail terminates the stream with err and cancels every other party.
func (m *flatMapMain[I, O]) fail(err error) {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.finished = true
	m.mu.Unlock()
	m.cancelAll()
	m.box.fail(err)
}

func (m *flatMapMain[I, O]) cancelAll() {
	m.mu.Lock()
	up := m.upstream
	inners := make([]*flatMapInner[I, O], 0, len(m.inners))
	for _, in := range m.inners {
		inners = append(inners, in)
	}
	m.inners = make(map[int]*flatMapInner[I, O])
	m.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
	for _, in := range inners {
		in.Cancel()
	}
}

// replenish requests one more value from the inner that produced a value
// which has just been delivered downstream.
func (m *flatMapMain[I, O]) replenish(id int) {
	m.mu.Lock()
	in := m.inners[id]
	m.mu.Unlock()
	if in != nil {
		in.Request(1)
	}
}

func (m *flatMapMain[I, O]) Request(n int64) { m.box.request(n) }

func (m *flatMapMain[I, O]) Cancel() {
	m.mu.Lock()
	m.finished = true
	m.mu.Unlock()
	m.box.cancel()
	m.cancelAll()
}

type flatMapInner[I, O any] struct {
	deferredSubscription
	main *flatMapMain[I, O]
	id   int
}

func (in *flatMapInner[I, O]) OnSubscribe(s Subscription) {
	if in.set(s) {
		s.Request(int64(in.main.cfg.prefetch))
	}
}

func (in *flatMapInner[I, O]) OnNext(v O) {
	if !in.isCancelled() {
		in.main.box.push(v, in.id)
	}
}

func (in *flatMapInner[I, O]) OnError(err error) {
	if !in.isCancelled() {
		in.main.fail(err)
	}
}

func (in *flatMapInner[I, O]) OnComplete() {
	if !in.isCancelled() {
		in.main.innerComplete(in)
	}
}

// Parallel applies fn to each value concurrently on sched with up to n
// values in flight. Order is NOT preserved. Use Map for ordered processing.
func Parallel[I, O any](p Publisher[I], n int, sched scheduler.Scheduler, fn func(context.Context, I) (O, error)) *Pipeline[O] {
	if n <= 0 {
		n = 1
	}
	return FlatMap(p, func(_ context.Context, v I) (Publisher[O], error) {
		return SubscribeOn(FromCallable(func(ctx context.Context) (O, error) {
			var out O
			err := guard("parallel", func() (err error) {
				out, err = fn(ctx, v)
				return err
			})
			return out, err
		}), sched), nil
	}, WithConcurrency(n), WithPrefetch(1))
}

// --- Merge ---

// Merge subscribes to every source at once and emits their values in
// arrival order. It completes when all sources complete; the first error
// cancels the remaining sources. Each source is prefetched and
// replenished one-for-one as its values are delivered downstream.
func Merge[T any](sources ...Publisher[T]) *Pipeline[T] {
	return MergeWith(sources)
}

// MergeWith is Merge with explicit prefetch options.
func MergeWith[T any](sources []Publisher[T], opts ...FlatMapOption) *Pipeline[T] {
	cfg := resolveFlatMap(opts)
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			if len(sources) == 0 {
				s.OnSubscribe(emptySubscription{})
				s.OnComplete()
				return
			}
			m := &mergeMain[T]{box: newOutbox(s), prefetch: int64(cfg.prefetch)}
			m.remaining.Store(int32(len(sources)))
			m.inners = make([]*mergeInner[T], len(sources))
			for i := range sources {
				m.inners[i] = &mergeInner[T]{main: m, index: i}
			}
			m.box.delivered = func(src int) { m.inners[src].Request(1) }
			s.OnSubscribe(m)
			for i, src := range sources {
				if m.box.isCancelled() {
					return
				}
				src.Subscribe(ctx, m.inners[i])
			}
		},
	}
}

type mergeMain[T any] struct {
	box       *outbox[T]
	inners    []*mergeInner[T]
	prefetch  int64
	remaining atomic.Int32
	failed    atomic.Bool
}

func (m *mergeMain[T]) Request(n int64) { m.box.request(n) }

func (m *mergeMain[T]) Cancel() {
	m.box.cancel()
	for _, in := range m.inners {
		in.Cancel()
	}
}

func (m *mergeMain[T]) fail(err error) {
	if !m.failed.CompareAndSwap(false, true) {
		return
	}
	for _, in := range m.inners {
		in.Cancel()
	}
	m.box.fail(err)
}

type mergeInner[T any] struct {
	deferredSubscription
	main  *mergeMain[T]
	index int
}

func (in *mergeInner[T]) OnSubscribe(s Subscription) {
	if in.set(s) {
		s.Request(in.main.prefetch)
	}
}

func (in *mergeInner[T]) OnNext(v T) {
	if !in.isCancelled() {
		in.main.box.push(v, in.index)
	}
}

func (in *mergeInner[T]) OnError(err error) {
	if !in.isCancelled() {
		in.main.fail(err)
	}
}

func (in *mergeInner[T]) OnComplete() {
	if in.isCancelled() {
		return
	}
	if in.main.remaining.Add(-1) == 0 {
		in.main.box.complete()
	}
}
