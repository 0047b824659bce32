// Package pipelinetest provides helpers for testing publishers: a
// Recorder that captures signals under manual demand control, and a
// StepVerifier that checks a publisher against an ordered script of
// expectations, optionally on a virtual clock.
//
//	v := scheduler.NewVirtual()
//	p := pipeline.DelayElements(pipeline.Just(1, 2), time.Second, v)
//	pipelinetest.Create(t, p, pipelinetest.WithVirtualTime(v)).
//	    ExpectNext(1, 2).
//	    VerifyComplete()
package pipelinetest
