// Package resilience layers retry on top of the stream core.
//
// The pipeline package never retries on its own: an error terminates the
// subscription. Retry wraps a publisher and subscribes to it again when
// it fails, as a RetryPolicy allows. The policy bounds the number of
// subscriptions and spaces them with exponential backoff, and the waits
// run on a scheduler so tests can drive them with virtual time:
//
//	policy := resilience.DefaultRetryPolicy()
//	policy.RetryIf = func(err error) bool { return !errors.Is(err, errBadInput) }
//	p := resilience.Retry(fetch, policy, sched)
package resilience
