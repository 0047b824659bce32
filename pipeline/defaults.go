package pipeline

import "sync/atomic"

// Defaults holds the engine-wide defaults used when an operator is built
// without an explicit option.
type Defaults struct {
	// Prefetch is the number of values requested ahead from each inner or
	// merged source.
	Prefetch int
	// Concurrency is the number of inner publishers FlatMap keeps subscribed.
	Concurrency int
}

const (
	defaultPrefetch    = 32
	defaultConcurrency = 256
)

var defaults atomic.Pointer[Defaults]

func init() {
	defaults.Store(&Defaults{Prefetch: defaultPrefetch, Concurrency: defaultConcurrency})
}

// Configure replaces the engine defaults. Non-positive fields fall back to
// the built-in values. Pipelines built before the call keep their settings.
func Configure(d Defaults) {
	if d.Prefetch <= 0 {
		d.Prefetch = defaultPrefetch
	}
	if d.Concurrency <= 0 {
		d.Concurrency = defaultConcurrency
	}
	defaults.Store(&d)
}

// CurrentDefaults returns the active engine defaults.
func CurrentDefaults() Defaults {
	return *defaults.Load()
}
