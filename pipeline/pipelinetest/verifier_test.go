package pipelinetest

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/kbukum/reactive/errors"
	"github.com/kbukum/reactive/pipeline"
	"github.com/kbukum/reactive/scheduler"
)

func TestRecorder_RecordsSignals(t *testing.T) {
	rec := NewRecorder[int](pipeline.Unbounded)
	pipeline.Just(1, 2).Subscribe(context.Background(), rec)

	if got := rec.Values(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("got %v, want [1 2]", got)
	}
	if !rec.Completed() {
		t.Error("expected completion")
	}
	if rec.Terminals() != 1 {
		t.Errorf("expected exactly one terminal, got %d", rec.Terminals())
	}
	if !rec.Wait(time.Second) {
		t.Error("Wait should return immediately after termination")
	}
}

func TestRecorder_ManualDemand(t *testing.T) {
	rec := NewRecorder[int](0)
	pipeline.Range(1, 5).Subscribe(context.Background(), rec)

	if !rec.Subscribed() {
		t.Fatal("expected subscription")
	}
	if n := len(rec.Values()); n != 0 {
		t.Fatalf("expected no values without demand, got %d", n)
	}
	rec.Request(2)
	if got := rec.Values(); len(got) != 2 {
		t.Fatalf("expected 2 values, got %v", got)
	}
	rec.Cancel()
	rec.Request(3)
	if got := rec.Values(); len(got) != 2 {
		t.Errorf("expected no values after cancel, got %v", got)
	}
	if rec.Terminals() != 0 {
		t.Error("cancel must not produce a terminal signal")
	}
}

func TestRecorder_Error(t *testing.T) {
	boom := stderrors.New("boom")
	rec := NewRecorder[string](pipeline.Unbounded)
	pipeline.Error[string](boom).Subscribe(context.Background(), rec)
	if !stderrors.Is(rec.Err(), boom) {
		t.Errorf("got %v, want boom", rec.Err())
	}
	if rec.Completed() {
		t.Error("error stream must not complete")
	}
}

func TestStepVerifier_Values(t *testing.T) {
	Create(t, pipeline.Just("a", "b")).
		ExpectNext("a", "b").
		VerifyComplete()
}

func TestStepVerifier_NextMatchesAndCount(t *testing.T) {
	Create(t, pipeline.Range(0, 10)).
		ExpectNextMatches(func(n int) bool { return n == 0 }).
		ExpectNextCount(9).
		VerifyComplete()
}

func TestStepVerifier_VirtualTime(t *testing.T) {
	v := scheduler.NewVirtual()
	p := pipeline.DelayElements(pipeline.Just(1, 2), time.Second, v)

	took := Create(t, p, WithVirtualTime(v)).
		ExpectNoEvent(time.Second).
		ExpectNext(1).
		ExpectNext(2).
		VerifyComplete()

	if took != 2*time.Second {
		t.Errorf("expected 2s of virtual time, got %s", took)
	}
}

func TestStepVerifier_ThenAwait(t *testing.T) {
	v := scheduler.NewVirtual()
	p := pipeline.DelayElements(pipeline.Just("x"), time.Minute, v)

	Create(t, p, WithVirtualTime(v)).
		ThenAwait(time.Minute).
		ExpectNext("x").
		VerifyComplete()
}

func TestStepVerifier_ThenRequest(t *testing.T) {
	Create(t, pipeline.Range(1, 3), WithInitialRequest(0)).
		ExpectNoEvent(10 * time.Millisecond).
		ThenRequest(1).
		ExpectNext(1).
		ThenRequest(2).
		ExpectNext(2, 3).
		VerifyComplete()
}

func TestStepVerifier_ThenCancel(t *testing.T) {
	Create(t, pipeline.Never[int]()).
		ThenCancel().
		Verify()
}

func TestStepVerifier_Then(t *testing.T) {
	sink := pipeline.NewSink[int]()
	Create(t, sink.Pipeline()).
		Then(func() { _ = sink.Next(7) }).
		ExpectNext(7).
		Then(func() { _ = sink.Complete() }).
		VerifyComplete()
}

func TestStepVerifier_Errors(t *testing.T) {
	boom := stderrors.New("boom")

	Create(t, pipeline.Error[int](boom)).VerifyError()
	Create(t, pipeline.Error[int](boom)).VerifyErrorIs(boom)
	Create(t, pipeline.Error[int](errors.Overflow("test"))).VerifyErrorCode(errors.ErrCodeOverflow)
	Create(t, pipeline.Error[int](boom)).
		VerifyErrorMatches(func(err error) bool { return err.Error() == "boom" })
}

func TestSignalKind_String(t *testing.T) {
	tests := []struct {
		kind SignalKind
		want string
	}{
		{SignalNext, "onNext"},
		{SignalError, "onError"},
		{SignalComplete, "onComplete"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
