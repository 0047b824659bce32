package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			if got := b.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffDelay_Jitter(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.5}
	for range 100 {
		d := b.Delay(2)
		if d < 100*time.Millisecond || d > 300*time.Millisecond {
			t.Fatalf("jittered delay %v outside [100ms, 300ms]", d)
		}
	}
}

func TestBackoffDelay_Constant(t *testing.T) {
	b := Backoff{Initial: time.Second}
	if got := b.Delay(5); got != time.Second {
		t.Errorf("zero factor should keep the delay constant, got %v", got)
	}
}

func TestRetryPolicy_Normalize(t *testing.T) {
	p := RetryPolicy{}.Normalize()
	if p.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", p.MaxAttempts)
	}
	if p.Backoff.Factor != 2 || p.Backoff.Max != 10*time.Second {
		t.Errorf("unexpected backoff defaults: %+v", p.Backoff)
	}
	if p.RetryIf == nil {
		t.Error("expected default RetryIf")
	}

	kept := RetryPolicy{MaxAttempts: 7, Backoff: Backoff{Initial: time.Second, Factor: 3}}.Normalize()
	if kept.MaxAttempts != 7 || kept.Backoff.Factor != 3 || kept.Backoff.Initial != time.Second {
		t.Errorf("explicit values should be kept: %+v", kept)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	errPermanent := errors.New("permanent")
	p := RetryPolicy{
		MaxAttempts: 3,
		RetryIf:     func(err error) bool { return !errors.Is(err, errPermanent) },
	}
	transient := errors.New("transient")

	tests := []struct {
		name    string
		attempt int
		err     error
		want    bool
	}{
		{"first failure", 1, transient, true},
		{"second failure", 2, transient, true},
		{"attempts exhausted", 3, transient, false},
		{"filtered error", 1, errPermanent, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldRetry(tt.attempt, tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.attempt, tt.err, got, tt.want)
			}
		})
	}
}

func TestDefaultRetryIf(t *testing.T) {
	if DefaultRetryIf(context.Canceled) {
		t.Error("context.Canceled should not be retried")
	}
	if DefaultRetryIf(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)) {
		t.Error("deadline errors should not be retried")
	}
	if !DefaultRetryIf(errors.New("boom")) {
		t.Error("plain errors should be retried")
	}
}
