package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kbukum/reactive/logger"
)

// LogOption configures the Log operator.
type LogOption func(*logConfig)

type logConfig struct {
	log    *logger.Logger
	level  zerolog.Level
	name   string
	values bool
}

// WithLogLogger sets the logger signals are written to. Defaults to the
// global logger.
func WithLogLogger(l *logger.Logger) LogOption {
	return func(c *logConfig) { c.log = l }
}

// WithLogLevel sets the level signals are logged at. Errors are always
// logged at error level.
func WithLogLevel(level zerolog.Level) LogOption {
	return func(c *logConfig) { c.level = level }
}

// WithLogName sets the operator name attached to every entry.
func WithLogName(name string) LogOption {
	return func(c *logConfig) { c.name = name }
}

// WithoutValues omits values from onNext entries.
func WithoutValues() LogOption {
	return func(c *logConfig) { c.values = false }
}

// Log passes every signal through unchanged while writing one structured
// entry per signal: subscribe, request, next, error, complete and cancel.
// Each subscription gets its own id so interleaved streams can be told
// apart.
func Log[T any](p Publisher[T], opts ...LogOption) *Pipeline[T] {
	cfg := logConfig{level: zerolog.InfoLevel, name: "log", values: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pipeline[T]{
		subscribe: func(ctx context.Context, s Subscriber[T]) {
			l := cfg.log
			if l == nil {
				l = logger.GetGlobalLogger()
			}
			ls := &logSubscriber[T]{
				cfg: cfg,
				log: l.WithFields(logger.Fields(
					logger.FieldOperator, cfg.name,
					logger.FieldSubscriptionID, uuid.NewString(),
				)),
			}
			ls.init(ctx, s, ls)
			p.Subscribe(ctx, ls)
		},
	}
}

type logSubscriber[T any] struct {
	relay[T, T]
	cfg logConfig
	log *logger.Logger
}

func (l *logSubscriber[T]) signal(name string, kvs ...interface{}) {
	if !l.log.Enabled(l.cfg.level) {
		return
	}
	fields := logger.Fields(append([]interface{}{logger.FieldSignal, name}, kvs...)...)
	l.log.Log(l.cfg.level, name, fields)
}

func (l *logSubscriber[T]) OnSubscribe(s Subscription) {
	l.signal(logger.SignalSubscribe)
	l.relay.OnSubscribe(s)
}

func (l *logSubscriber[T]) OnNext(v T) {
	if !l.accept() {
		return
	}
	if l.cfg.values {
		l.signal(logger.SignalNext, logger.FieldValue, v)
	} else {
		l.signal(logger.SignalNext)
	}
	l.emit(v)
}

func (l *logSubscriber[T]) OnError(err error) {
	if !l.skipped() {
		l.log.Error(logger.SignalError, logger.MergeWithError(logger.Fields(logger.FieldSignal, logger.SignalError), err))
	}
	l.relay.OnError(err)
}

func (l *logSubscriber[T]) OnComplete() {
	if !l.skipped() {
		l.signal(logger.SignalComplete)
	}
	l.relay.OnComplete()
}

func (l *logSubscriber[T]) Request(n int64) {
	validateRequest(n)
	demand := any(n)
	if n == Unbounded {
		demand = "unbounded"
	}
	l.signal(logger.SignalRequest, logger.FieldDemand, demand)
	l.relay.Request(n)
}

func (l *logSubscriber[T]) Cancel() {
	if !l.skipped() {
		l.signal(logger.SignalCancel)
	}
	l.relay.Cancel()
}
