package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/reactive/errors"
	"github.com/kbukum/reactive/logger"
	"github.com/kbukum/reactive/observability"
)

// Option configures a Parallel scheduler.
type Option func(*config)

type config struct {
	name    string
	workers int
	log     *logger.Logger
	metrics *observability.StreamMetrics
}

// WithWorkers sets the number of worker goroutines. Values below one fall
// back to runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithName sets the name used in logs and metric attributes.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger sets the logger used for worker lifecycle and panics.
func WithLogger(l *logger.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithMetrics records task and queue metrics on m.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

type poolTask struct {
	fn        func()
	cancelled atomic.Bool
}

// Parallel is a worker-pool scheduler. Tasks are queued in submission order
// and picked up by whichever worker is free, so tasks may run concurrently
// and complete in any order.
//
// Parallel is safe for concurrent use.
type Parallel struct {
	cfg   config
	group errgroup.Group

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*poolTask
	closed bool
}

// NewParallel starts a worker pool.
//
// Defaults:
//   - Workers: runtime.NumCPU()
//   - Name: "parallel"
//   - Logger: global logger tagged with component "scheduler"
func NewParallel(opts ...Option) *Parallel {
	c := config{name: "parallel"}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.workers <= 0 {
		c.workers = runtime.NumCPU()
	}
	if c.log == nil {
		c.log = logger.WithComponent("scheduler")
	}
	c.log = c.log.WithFields(logger.Fields(logger.FieldScheduler, c.name))

	p := &Parallel{cfg: c}
	p.cond = sync.NewCond(&p.mu)
	for i := range c.workers {
		p.group.Go(func() error {
			p.work(i)
			return nil
		})
	}
	c.log.Debug("worker pool started", logger.Fields("workers", c.workers))
	return p
}

// Workers returns the number of worker goroutines.
func (p *Parallel) Workers() int { return p.cfg.workers }

// Now returns the wall clock time.
func (p *Parallel) Now() time.Time { return time.Now() }

// Schedule queues task for the next free worker. Tasks submitted after Close
// are dropped.
func (p *Parallel) Schedule(task func()) CancelFunc {
	t := &poolTask{fn: task}
	ctx := context.Background()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.cfg.metrics.RecordTask(ctx, p.cfg.name, observability.TaskDropped)
		return noopCancel
	}
	p.queue = append(p.queue, t)
	p.cond.Signal()
	p.mu.Unlock()

	p.cfg.metrics.RecordTask(ctx, p.cfg.name, observability.TaskSubmitted)
	p.cfg.metrics.RecordQueueDepth(ctx, p.cfg.name, 1)
	return func() { t.cancelled.Store(true) }
}

// ScheduleAfter arms a real timer that queues task when it fires.
func (p *Parallel) ScheduleAfter(delay time.Duration, task func()) CancelFunc {
	if delay <= 0 {
		return p.Schedule(task)
	}
	var (
		mu        sync.Mutex
		inner     CancelFunc
		cancelled bool
	)
	timer := time.AfterFunc(delay, func() {
		mu.Lock()
		defer mu.Unlock()
		if cancelled {
			return
		}
		inner = p.Schedule(task)
	})
	return func() {
		timer.Stop()
		mu.Lock()
		cancelled = true
		c := inner
		mu.Unlock()
		if c != nil {
			c()
		}
	}
}

// SchedulePeriodic runs task every period on the pool.
func (p *Parallel) SchedulePeriodic(initialDelay, period time.Duration, task func()) CancelFunc {
	return schedulePeriodic(p, initialDelay, period, task)
}

// Close stops the workers and drops queued tasks. Close is safe to call
// multiple times.
func (p *Parallel) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	dropped := len(p.queue)
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	ctx := context.Background()
	if dropped > 0 {
		p.cfg.metrics.RecordQueueDepth(ctx, p.cfg.name, -int64(dropped))
		for range dropped {
			p.cfg.metrics.RecordTask(ctx, p.cfg.name, observability.TaskDropped)
		}
	}
	err := p.group.Wait()
	p.cfg.log.Debug("worker pool stopped", logger.Fields("dropped", dropped))
	return err
}

func (p *Parallel) next() (*poolTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return nil, false
	}
	t := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return t, true
}

func (p *Parallel) work(id int) {
	ctx := context.Background()
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		p.cfg.metrics.RecordQueueDepth(ctx, p.cfg.name, -1)
		if t.cancelled.Load() {
			p.cfg.metrics.RecordTask(ctx, p.cfg.name, observability.TaskCancelled)
			continue
		}
		p.run(ctx, id, t)
	}
}

func (p *Parallel) run(ctx context.Context, id int, t *poolTask) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.OperatorPanic("scheduler task", r)
			p.cfg.log.WithError(err).Error("task panicked", logger.Fields(logger.FieldWorker, id))
			p.cfg.metrics.RecordTask(ctx, p.cfg.name, observability.TaskPanicked)
		}
	}()
	t.fn()
	p.cfg.metrics.RecordTask(ctx, p.cfg.name, observability.TaskExecuted)
}
