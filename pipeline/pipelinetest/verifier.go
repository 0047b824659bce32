package pipelinetest

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/kbukum/reactive/errors"
	"github.com/kbukum/reactive/pipeline"
	"github.com/kbukum/reactive/scheduler"
)

// DefaultTimeout bounds how long a verifier waits in real time for a signal.
const DefaultTimeout = 5 * time.Second

// Option configures a StepVerifier.
type Option func(*options)

type options struct {
	virtual *scheduler.Virtual
	initial int64
	timeout time.Duration
}

// WithVirtualTime drives v while waiting for signals: when no signal is
// available the clock jumps to the next scheduled task.
func WithVirtualTime(v *scheduler.Virtual) Option {
	return func(o *options) { o.virtual = v }
}

// WithInitialRequest sets the demand requested on subscription. The
// default is unbounded; 0 requests nothing until ThenRequest.
func WithInitialRequest(n int64) Option {
	return func(o *options) { o.initial = n }
}

// WithTimeout bounds how long each step waits in real time.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

type step[T any] struct {
	desc string
	run  func(v *run[T]) error
}

// StepVerifier subscribes to a publisher and checks the signals it emits
// against an ordered script of expectations. Nothing happens until one of
// the Verify methods is called.
type StepVerifier[T any] struct {
	t     testing.TB
	pub   pipeline.Publisher[T]
	opts  options
	steps []step[T]
}

// Create starts a verification script for p.
func Create[T any](t testing.TB, p pipeline.Publisher[T], opts ...Option) *StepVerifier[T] {
	o := options{initial: pipeline.Unbounded, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &StepVerifier[T]{t: t, pub: p, opts: o}
}

func (sv *StepVerifier[T]) add(desc string, fn func(v *run[T]) error) *StepVerifier[T] {
	sv.steps = append(sv.steps, step[T]{desc: desc, run: fn})
	return sv
}

// ExpectNext expects the given values, in order, as the next signals.
func (sv *StepVerifier[T]) ExpectNext(values ...T) *StepVerifier[T] {
	for _, want := range values {
		sv.add(fmt.Sprintf("expectNext(%v)", want), func(v *run[T]) error {
			s, err := v.nextSignal()
			if err != nil {
				return err
			}
			if s.Kind != SignalNext {
				return fmt.Errorf("expected onNext(%v), got %s", want, describe(s))
			}
			if !reflect.DeepEqual(s.Value, want) {
				return fmt.Errorf("expected value %v, got %v", want, s.Value)
			}
			return nil
		})
	}
	return sv
}

// ExpectNextMatches expects the next signal to be a value accepted by fn.
func (sv *StepVerifier[T]) ExpectNextMatches(fn func(T) bool) *StepVerifier[T] {
	return sv.add("expectNextMatches", func(v *run[T]) error {
		s, err := v.nextSignal()
		if err != nil {
			return err
		}
		if s.Kind != SignalNext {
			return fmt.Errorf("expected onNext, got %s", describe(s))
		}
		if !fn(s.Value) {
			return fmt.Errorf("value %v did not match", s.Value)
		}
		return nil
	})
}

// ExpectNextCount expects n values, whatever they are.
func (sv *StepVerifier[T]) ExpectNextCount(n int) *StepVerifier[T] {
	return sv.add(fmt.Sprintf("expectNextCount(%d)", n), func(v *run[T]) error {
		for i := 0; i < n; i++ {
			s, err := v.nextSignal()
			if err != nil {
				return fmt.Errorf("after %d values: %w", i, err)
			}
			if s.Kind != SignalNext {
				return fmt.Errorf("expected %d values, got %d then %s", n, i, describe(s))
			}
		}
		return nil
	})
}

// ExpectNoEvent expects no signal during the next d. With virtual time the
// clock moves forward by d; signals due exactly at the end of the window
// are not counted against it.
func (sv *StepVerifier[T]) ExpectNoEvent(d time.Duration) *StepVerifier[T] {
	return sv.add(fmt.Sprintf("expectNoEvent(%s)", d), func(v *run[T]) error {
		before := v.rec.count()
		if v.opts.virtual != nil {
			if d > 0 {
				v.opts.virtual.AdvanceBy(d - time.Nanosecond)
			}
		} else {
			time.Sleep(d)
		}
		if after := v.rec.count(); after > before {
			s, _ := v.rec.at(before)
			return fmt.Errorf("expected no event, got %s", describe(s))
		}
		if v.opts.virtual != nil && d > 0 {
			v.opts.virtual.AdvanceBy(time.Nanosecond)
		}
		return nil
	})
}

// ThenAwait lets d pass, on the virtual clock if one is configured.
func (sv *StepVerifier[T]) ThenAwait(d time.Duration) *StepVerifier[T] {
	return sv.add(fmt.Sprintf("thenAwait(%s)", d), func(v *run[T]) error {
		if v.opts.virtual != nil {
			v.opts.virtual.AdvanceBy(d)
			return nil
		}
		time.Sleep(d)
		return nil
	})
}

// ThenRequest requests n more values.
func (sv *StepVerifier[T]) ThenRequest(n int64) *StepVerifier[T] {
	return sv.add(fmt.Sprintf("thenRequest(%d)", n), func(v *run[T]) error {
		v.rec.Request(n)
		return nil
	})
}

// ThenCancel cancels the subscription.
func (sv *StepVerifier[T]) ThenCancel() *StepVerifier[T] {
	return sv.add("thenCancel", func(v *run[T]) error {
		v.rec.Cancel()
		v.cancelled = true
		return nil
	})
}

// Then runs fn, typically to feed a hot source.
func (sv *StepVerifier[T]) Then(fn func()) *StepVerifier[T] {
	return sv.add("then", func(*run[T]) error {
		fn()
		return nil
	})
}

// VerifyComplete runs the script and expects completion. It returns the
// time the verification took, on the virtual clock if one is configured.
func (sv *StepVerifier[T]) VerifyComplete() time.Duration {
	sv.t.Helper()
	return sv.verify("expectComplete", func(s Signal[T]) error {
		if s.Kind != SignalComplete {
			return fmt.Errorf("expected onComplete, got %s", describe(s))
		}
		return nil
	})
}

// VerifyError runs the script and expects an error of any kind.
func (sv *StepVerifier[T]) VerifyError() time.Duration {
	sv.t.Helper()
	return sv.VerifyErrorMatches(func(error) bool { return true })
}

// VerifyErrorIs runs the script and expects an error matching target
// according to errors.Is.
func (sv *StepVerifier[T]) VerifyErrorIs(target error) time.Duration {
	sv.t.Helper()
	return sv.VerifyErrorMatches(func(err error) bool { return stderrors.Is(err, target) })
}

// VerifyErrorCode runs the script and expects an error carrying code.
func (sv *StepVerifier[T]) VerifyErrorCode(code errors.ErrorCode) time.Duration {
	sv.t.Helper()
	return sv.VerifyErrorMatches(func(err error) bool { return errors.HasCode(err, code) })
}

// VerifyErrorMatches runs the script and expects an error accepted by fn.
func (sv *StepVerifier[T]) VerifyErrorMatches(fn func(error) bool) time.Duration {
	sv.t.Helper()
	return sv.verify("expectError", func(s Signal[T]) error {
		if s.Kind != SignalError {
			return fmt.Errorf("expected onError, got %s", describe(s))
		}
		if !fn(s.Err) {
			return fmt.Errorf("unexpected error: %v", s.Err)
		}
		return nil
	})
}

// Verify runs the script without expecting a terminal signal, typically
// after ThenCancel. It fails if a signal arrived that no step consumed.
func (sv *StepVerifier[T]) Verify() time.Duration {
	sv.t.Helper()
	return sv.verify("verify", nil)
}

func (sv *StepVerifier[T]) verify(desc string, terminal func(Signal[T]) error) time.Duration {
	sv.t.Helper()
	v := &run[T]{opts: sv.opts, rec: NewRecorder[T](sv.opts.initial)}
	start := v.now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sv.pub.Subscribe(ctx, v.rec)
	defer v.rec.Cancel()

	for i, st := range sv.steps {
		if err := st.run(v); err != nil {
			sv.t.Fatalf("step %d %s: %v", i+1, st.desc, err)
			return v.now().Sub(start)
		}
	}
	if terminal != nil {
		s, err := v.nextSignal()
		if err == nil {
			err = terminal(s)
		}
		if err != nil {
			sv.t.Fatalf("%s: %v", desc, err)
		}
	} else if n := v.rec.count(); n > v.cursor && !v.cancelled {
		s, _ := v.rec.at(v.cursor)
		sv.t.Fatalf("%s: unexpected %s", desc, describe(s))
	}
	return v.now().Sub(start)
}

// run is the state of one verification.
type run[T any] struct {
	opts      options
	rec       *Recorder[T]
	cursor    int
	cancelled bool
}

func (v *run[T]) now() time.Time {
	if v.opts.virtual != nil {
		return v.opts.virtual.Now()
	}
	return time.Now()
}

// nextSignal returns the next unconsumed signal, advancing virtual time or
// waiting in real time until one arrives.
func (v *run[T]) nextSignal() (Signal[T], error) {
	for {
		if s, ok := v.rec.at(v.cursor); ok {
			v.cursor++
			return s, nil
		}
		if v.opts.virtual != nil && v.opts.virtual.AdvanceToNext() {
			continue
		}
		if !v.rec.waitFor(v.cursor, v.opts.timeout) {
			var zero Signal[T]
			return zero, fmt.Errorf("no signal within %s", v.opts.timeout)
		}
	}
}

func describe[T any](s Signal[T]) string {
	switch s.Kind {
	case SignalNext:
		return fmt.Sprintf("onNext(%v)", s.Value)
	case SignalError:
		return fmt.Sprintf("onError(%v)", s.Err)
	default:
		return "onComplete()"
	}
}
