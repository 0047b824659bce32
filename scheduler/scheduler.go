package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/reactive/errors"
)

// CancelFunc abandons a scheduled task. Calling it more than once, or after
// the task ran, is a no-op.
type CancelFunc func()

// Scheduler executes tasks now, later or periodically.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time
	// Schedule runs task as soon as the scheduler allows.
	Schedule(task func()) CancelFunc
	// ScheduleAfter runs task once delay has elapsed on the scheduler clock.
	ScheduleAfter(delay time.Duration, task func()) CancelFunc
	// SchedulePeriodic runs task after initialDelay and then every period.
	SchedulePeriodic(initialDelay, period time.Duration, task func()) CancelFunc
}

func noopCancel() {}

// --- Immediate ---

type immediate struct{}

var immediateScheduler Scheduler = immediate{}

// Immediate returns the synchronous scheduler. Schedule runs the task on the
// calling goroutine before returning; delayed tasks fire on real timers.
func Immediate() Scheduler { return immediateScheduler }

func (immediate) Now() time.Time { return time.Now() }

func (immediate) Schedule(task func()) CancelFunc {
	task()
	return noopCancel
}

func (s immediate) ScheduleAfter(delay time.Duration, task func()) CancelFunc {
	if delay <= 0 {
		return s.Schedule(task)
	}
	t := time.AfterFunc(delay, task)
	return func() { t.Stop() }
}

func (s immediate) SchedulePeriodic(initialDelay, period time.Duration, task func()) CancelFunc {
	return schedulePeriodic(s, initialDelay, period, task)
}

// --- periodic helper ---

// periodicTask re-arms itself through ScheduleAfter. The n-th run is aimed at
// start + initialDelay + n*period so execution latency never accumulates.
type periodicTask struct {
	sched     Scheduler
	first     time.Time
	period    time.Duration
	task      func()
	cancelled atomic.Bool

	mu       sync.Mutex
	current  CancelFunc
	currentN int64
}

func schedulePeriodic(s Scheduler, initialDelay, period time.Duration, task func()) CancelFunc {
	if period <= 0 {
		panic(errors.ProtocolViolation("periodic task requires a positive period").
			WithDetail("period", period.String()))
	}
	if initialDelay < 0 {
		initialDelay = 0
	}
	p := &periodicTask{
		sched:    s,
		first:    s.Now().Add(initialDelay),
		period:   period,
		task:     task,
		currentN: -1,
	}
	p.arm(0)
	return p.cancel
}

func (p *periodicTask) arm(n int64) {
	if p.cancelled.Load() {
		return
	}
	at := p.first.Add(time.Duration(n) * p.period)
	c := p.sched.ScheduleAfter(at.Sub(p.sched.Now()), func() { p.fire(n) })

	p.mu.Lock()
	if n > p.currentN {
		p.current = c
		p.currentN = n
	}
	p.mu.Unlock()

	if p.cancelled.Load() {
		c()
	}
}

func (p *periodicTask) fire(n int64) {
	if p.cancelled.Load() {
		return
	}
	p.task()
	p.arm(n + 1)
}

func (p *periodicTask) cancel() {
	if !p.cancelled.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	c := p.current
	p.mu.Unlock()
	if c != nil {
		c()
	}
}
