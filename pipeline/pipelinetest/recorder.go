package pipelinetest

import (
	"sync"
	"time"

	"github.com/kbukum/reactive/pipeline"
)

// SignalKind identifies a recorded signal.
type SignalKind int

const (
	SignalNext SignalKind = iota
	SignalError
	SignalComplete
)

// String returns the signal name.
func (k SignalKind) String() string {
	switch k {
	case SignalNext:
		return "onNext"
	case SignalError:
		return "onError"
	default:
		return "onComplete"
	}
}

// Signal is one recorded event.
type Signal[T any] struct {
	Kind  SignalKind
	Value T
	Err   error
}

// Recorder is a Subscriber that records every signal it receives. It is
// safe for concurrent use and lets tests drive demand by hand.
type Recorder[T any] struct {
	mu         sync.Mutex
	sub        pipeline.Subscription
	initial    int64
	signals    []Signal[T]
	subscribed bool
	terminated bool
	notify     chan struct{}
	done       chan struct{}
}

// NewRecorder creates a recorder that requests initial values on
// subscription. initial <= 0 requests nothing.
func NewRecorder[T any](initial int64) *Recorder[T] {
	return &Recorder[T]{
		initial: initial,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (r *Recorder[T]) OnSubscribe(s pipeline.Subscription) {
	r.mu.Lock()
	r.sub = s
	r.subscribed = true
	r.mu.Unlock()
	if r.initial > 0 {
		s.Request(r.initial)
	}
}

func (r *Recorder[T]) OnNext(v T) {
	r.record(Signal[T]{Kind: SignalNext, Value: v}, false)
}

func (r *Recorder[T]) OnError(err error) {
	r.record(Signal[T]{Kind: SignalError, Err: err}, true)
}

func (r *Recorder[T]) OnComplete() {
	r.record(Signal[T]{Kind: SignalComplete}, true)
}

func (r *Recorder[T]) record(s Signal[T], terminal bool) {
	r.mu.Lock()
	r.signals = append(r.signals, s)
	closeDone := terminal && !r.terminated
	if terminal {
		r.terminated = true
	}
	r.mu.Unlock()
	if closeDone {
		close(r.done)
	}
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Request asks the upstream for n more values.
func (r *Recorder[T]) Request(n int64) {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	if sub != nil {
		sub.Request(n)
	}
}

// Cancel cancels the subscription.
func (r *Recorder[T]) Cancel() {
	r.mu.Lock()
	sub := r.sub
	r.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// Subscribed reports whether OnSubscribe has been received.
func (r *Recorder[T]) Subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribed
}

// Signals returns a copy of every signal recorded so far.
func (r *Recorder[T]) Signals() []Signal[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Signal[T](nil), r.signals...)
}

// Values returns the values received so far.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	for _, s := range r.signals {
		if s.Kind == SignalNext {
			out = append(out, s.Value)
		}
	}
	return out
}

// Err returns the error received, if any.
func (r *Recorder[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.signals {
		if s.Kind == SignalError {
			return s.Err
		}
	}
	return nil
}

// Completed reports whether OnComplete was received.
func (r *Recorder[T]) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.signals {
		if s.Kind == SignalComplete {
			return true
		}
	}
	return false
}

// Terminals returns how many terminal signals were received. Anything
// other than 0 or 1 is a protocol violation.
func (r *Recorder[T]) Terminals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.signals {
		if s.Kind != SignalNext {
			n++
		}
	}
	return n
}

// Done is closed when the first terminal signal arrives.
func (r *Recorder[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until a terminal signal arrives or timeout elapses, and
// reports whether the stream terminated.
func (r *Recorder[T]) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return true
	case <-timer.C:
		return false
	}
}

// at returns the signal at index i if it has been recorded.
func (r *Recorder[T]) at(i int) (Signal[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < len(r.signals) {
		return r.signals[i], true
	}
	var zero Signal[T]
	return zero, false
}

func (r *Recorder[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

// waitFor blocks until more than n signals are recorded or timeout elapses.
func (r *Recorder[T]) waitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if r.count() > n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.count() > n
		}
	}
}
