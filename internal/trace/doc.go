// Package trace records spans and instant events of a generator run.
//
// Enable tracing from the command line:
//
//	winapigen generate --trace=- --trace-level=stage ...
//
// Tracers:
//
//   - Nop: disabled tracing, zero overhead
//   - StreamTracer: writes every event as it happens
//   - RingTracer: keeps the last events in memory for dumps after a failure
//   - MultiTracer: fans out to several tracers
//
// Scopes, coarsest first: ScopeRun (one CLI invocation), ScopeStage
// (resolve, layout, marshal, emit, write), ScopeProfile (work for one ABI
// profile) and ScopeEntry (one catalog entry). A level admits every scope up
// to its own granularity.
//
// Tracers travel through the pipeline in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeStage, "layout", 0)
//	defer span.End("")
package trace
