package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kbukum/reactive/errors"
)

// OverflowPolicy decides what a Sink does when a subscriber's buffer is full.
type OverflowPolicy int

const (
	// FailOnOverflow terminates the slow subscriber with an overflow error.
	FailOnOverflow OverflowPolicy = iota
	// DropNewest discards the value being emitted.
	DropNewest
	// DropOldest discards the oldest buffered value to make room.
	DropOldest
)

// String returns the policy name.
func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop_newest"
	case DropOldest:
		return "drop_oldest"
	default:
		return "fail"
	}
}

// DefaultSinkBuffer is the per-subscriber buffer size of a Sink.
const DefaultSinkBuffer = 256

// SinkOption configures a Sink.
type SinkOption func(*sinkConfig)

type sinkConfig struct {
	buffer int
	policy OverflowPolicy
}

// WithSinkBuffer sets the number of values buffered per subscriber while it
// has no demand. n <= 0 means unbounded.
func WithSinkBuffer(n int) SinkOption {
	return func(c *sinkConfig) { c.buffer = n }
}

// WithOverflowPolicy sets the policy applied when a subscriber buffer is full.
func WithOverflowPolicy(p OverflowPolicy) SinkOption {
	return func(c *sinkConfig) { c.policy = p }
}

// Sink is a hot publisher fed from outside. All current subscribers share
// one signal sequence; a subscriber only sees values emitted after it
// subscribed. Subscribers arriving after a terminal signal receive it
// immediately.
type Sink[T any] struct {
	cfg   sinkConfig
	mu    sync.Mutex
	subs  map[*sinkSubscription[T]]struct{}
	done  bool
	err   error
	drops atomic.Int64
}

// NewSink creates a hot source.
func NewSink[T any](opts ...SinkOption) *Sink[T] {
	cfg := sinkConfig{buffer: DefaultSinkBuffer, policy: FailOnOverflow}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Sink[T]{cfg: cfg, subs: make(map[*sinkSubscription[T]]struct{})}
}

type sinkSubscription[T any] struct {
	sink *Sink[T]
	box  *outbox[T]
}

func (s *sinkSubscription[T]) Request(n int64) { s.box.request(n) }

func (s *sinkSubscription[T]) Cancel() {
	s.box.cancel()
	s.sink.remove(s)
}

// Subscribe attaches s to the sink.
func (k *Sink[T]) Subscribe(_ context.Context, s Subscriber[T]) {
	sub := &sinkSubscription[T]{sink: k, box: newOutbox(s)}
	k.mu.Lock()
	if k.done {
		err := k.err
		k.mu.Unlock()
		s.OnSubscribe(emptySubscription{})
		if err != nil {
			s.OnError(err)
		} else {
			s.OnComplete()
		}
		return
	}
	k.subs[sub] = struct{}{}
	k.mu.Unlock()
	s.OnSubscribe(sub)
}

// Pipeline exposes the sink as a Pipeline so operators can be chained on it.
func (k *Sink[T]) Pipeline() *Pipeline[T] {
	return &Pipeline[T]{subscribe: k.Subscribe}
}

// Next emits v to every current subscriber. It returns a protocol
// violation if the sink has already terminated.
func (k *Sink[T]) Next(v T) error {
	k.mu.Lock()
	if k.done {
		k.mu.Unlock()
		return errors.ProtocolViolation("sink already terminated")
	}
	subs := k.snapshot()
	k.mu.Unlock()

	for _, sub := range subs {
		switch sub.box.offer(v, k.cfg.buffer, k.cfg.policy) {
		case offerDroppedNewest, offerDroppedOldest:
			k.drops.Add(1)
		case offerOverflow:
			k.drops.Add(1)
			k.remove(sub)
			sub.box.fail(errors.Overflow("sink").WithDetail("buffer", k.cfg.buffer))
		}
	}
	return nil
}

// Error terminates every subscriber with err.
func (k *Sink[T]) Error(err error) error {
	return k.terminate(err)
}

// Complete terminates every subscriber normally. Buffered values are
// delivered before completion.
func (k *Sink[T]) Complete() error {
	return k.terminate(nil)
}

// Subscribers returns the number of active subscribers.
func (k *Sink[T]) Subscribers() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.subs)
}

// Drops returns the number of values dropped by the overflow policy.
func (k *Sink[T]) Drops() int64 {
	return k.drops.Load()
}

func (k *Sink[T]) terminate(err error) error {
	k.mu.Lock()
	if k.done {
		k.mu.Unlock()
		return errors.ProtocolViolation("sink already terminated")
	}
	k.done = true
	k.err = err
	subs := k.snapshot()
	k.subs = make(map[*sinkSubscription[T]]struct{})
	k.mu.Unlock()

	for _, sub := range subs {
		if err != nil {
			sub.box.fail(err)
		} else {
			sub.box.complete()
		}
	}
	return nil
}

func (k *Sink[T]) snapshot() []*sinkSubscription[T] {
	subs := make([]*sinkSubscription[T], 0, len(k.subs))
	for sub := range k.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (k *Sink[T]) remove(sub *sinkSubscription[T]) {
	k.mu.Lock()
	delete(k.subs, sub)
	k.mu.Unlock()
}
