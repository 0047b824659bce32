package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// DefaultEpoch is the instant a Virtual scheduler starts at unless
// WithEpoch says otherwise.
var DefaultEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// VirtualOption configures a Virtual scheduler.
type VirtualOption func(*Virtual)

// WithEpoch sets the starting instant of the virtual clock.
func WithEpoch(t time.Time) VirtualOption {
	return func(v *Virtual) {
		v.now = t
		v.target = t
		v.epoch = t
	}
}

type virtualTask struct {
	at    time.Time
	seq   uint64
	fn    func()
	index int
}

type taskQueue []*virtualTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*virtualTask)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// Virtual is a scheduler driven by a logical clock. Tasks are ordered by
// (fire time, submission order) and only run when the clock is advanced
// past their fire time, or immediately when scheduled without delay.
//
// Advancing is reentrant: a task that schedules more work inside the
// advanced window sees that work run within the same advance.
type Virtual struct {
	mu       sync.Mutex
	epoch    time.Time
	now      time.Time
	target   time.Time
	queue    taskQueue
	seq      uint64
	draining bool
}

// NewVirtual creates a virtual-time scheduler positioned at DefaultEpoch.
func NewVirtual(opts ...VirtualOption) *Virtual {
	v := &Virtual{epoch: DefaultEpoch, now: DefaultEpoch, target: DefaultEpoch}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Now returns the virtual clock reading.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Elapsed returns how far the clock moved since the epoch.
func (v *Virtual) Elapsed() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now.Sub(v.epoch)
}

// Pending returns the number of tasks waiting for the clock.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.queue)
}

// Schedule runs task at the current virtual instant. Outside of an advance
// the task runs before Schedule returns.
func (v *Virtual) Schedule(task func()) CancelFunc {
	return v.ScheduleAfter(0, task)
}

// ScheduleAfter queues task to run once the clock reaches now+delay.
func (v *Virtual) ScheduleAfter(delay time.Duration, task func()) CancelFunc {
	if delay < 0 {
		delay = 0
	}
	v.mu.Lock()
	t := &virtualTask{at: v.now.Add(delay), seq: v.seq, fn: task}
	v.seq++
	heap.Push(&v.queue, t)
	v.mu.Unlock()

	if delay == 0 {
		v.drain(time.Time{})
	}
	return func() { v.remove(t) }
}

// SchedulePeriodic runs task at now+initialDelay and every period after that.
func (v *Virtual) SchedulePeriodic(initialDelay, period time.Duration, task func()) CancelFunc {
	return schedulePeriodic(v, initialDelay, period, task)
}

// AdvanceBy moves the clock forward by d, running every task that falls due
// in (time, submission) order.
func (v *Virtual) AdvanceBy(d time.Duration) {
	if d < 0 {
		d = 0
	}
	v.mu.Lock()
	to := v.now.Add(d)
	v.mu.Unlock()
	v.drain(to)
}

// AdvanceTo moves the clock to t. Instants in the past are ignored.
func (v *Virtual) AdvanceTo(t time.Time) {
	v.drain(t)
}

// AdvanceToNext moves the clock to the earliest queued task and runs every
// task due at that instant. It returns false when nothing is queued.
func (v *Virtual) AdvanceToNext() bool {
	v.mu.Lock()
	if len(v.queue) == 0 {
		v.mu.Unlock()
		return false
	}
	at := v.queue[0].at
	v.mu.Unlock()
	v.drain(at)
	return true
}

// RunUntilIdle advances the clock until no task is queued. A periodic task
// that is never cancelled keeps the scheduler busy forever; bound such
// streams with Take or cancel them first.
func (v *Virtual) RunUntilIdle() {
	for v.AdvanceToNext() {
	}
}

func (v *Virtual) remove(t *virtualTask) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.index >= 0 && t.index < len(v.queue) && v.queue[t.index] == t {
		heap.Remove(&v.queue, t.index)
	}
}

// drain runs due tasks up to the furthest requested instant. A zero target
// only runs tasks that are due at the current instant.
func (v *Virtual) drain(target time.Time) {
	v.mu.Lock()
	if target.After(v.target) {
		v.target = target
	}
	if v.draining {
		v.mu.Unlock()
		return
	}
	v.draining = true
	for len(v.queue) > 0 && !v.queue[0].at.After(v.target) {
		t := heap.Pop(&v.queue).(*virtualTask)
		if t.at.After(v.now) {
			v.now = t.at
		}
		v.mu.Unlock()
		v.run(t)
		v.mu.Lock()
	}
	if v.target.After(v.now) {
		v.now = v.target
	}
	v.draining = false
	v.mu.Unlock()
}

// run executes t and releases the drain flag if t panics so the scheduler
// stays usable.
func (v *Virtual) run(t *virtualTask) {
	defer func() {
		if r := recover(); r != nil {
			v.mu.Lock()
			v.draining = false
			v.mu.Unlock()
			panic(r)
		}
	}()
	t.fn()
}
