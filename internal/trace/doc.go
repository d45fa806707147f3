// Package trace provides hierarchical diagnostic tracing for cooperative,
// single-threaded programs.
//
// Work is described by nested scopes. Each scope carries a domain, an ordered
// tag set and a depth, and emits a start line, its own messages and an end
// line through a Sink. Scopes that can be suspended and resumed are opened as
// interruptable roots; each one holds a lane, and every rendered line shows a
// fixed-width lane channel so that several independently suspended chains can
// be told apart in one interleaved trace.
//
// # Usage
//
// A Stack owns the "current" scope and the lane registry. It travels through
// the program in a context:
//
//	st := trace.NewStack(trace.NewStreamSink(os.Stderr, false), trace.WithVerbosity(trace.Regular))
//	ctx = trace.WithStack(ctx, st)
//
//	s := trace.Open(ctx, "load", trace.InDomain("io"), trace.WithTags("disk"))
//	defer s.Dispose()
//	s.Write("reading header")
//
// # Verbosity
//
//   - Verbose: start lines are emitted on creation, debug messages are shown
//   - Regular: start lines are deferred until the scope writes something
//   - WarningsAndErrorsOnly: regular messages are dropped entirely
//
// # Interrupt and Resume
//
// A cooperative scheduler detaches a suspended task with Scope.Interrupt and
// reattaches it with Scope.Resume. The scope keeps its identity and lane in
// between. A scope that is interrupted and never resumed or disposed keeps
// its lane forever; Stack.Stalled reports such scopes.
//
// A Stack is not safe for concurrent use. Independent stacks share nothing.
package trace
