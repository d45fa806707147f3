package trace

import "context"

// ctxKey is the key type for storing a Stack in context.
type ctxKey struct{}

// FromContext extracts the Stack from context.
// If none is attached, it returns a fresh stack that discards output. The
// fresh stack is not stored anywhere, so each call sees an empty one.
func FromContext(ctx context.Context) *Stack {
	if ctx != nil {
		if st, ok := ctx.Value(ctxKey{}).(*Stack); ok && st != nil {
			return st
		}
	}
	return NewStack(Nop)
}

// WithStack attaches a Stack to context.
func WithStack(ctx context.Context, st *Stack) context.Context {
	return context.WithValue(ctx, ctxKey{}, st)
}

// Open opens a scope on the stack carried by ctx. Without a stack the scope
// lives on a throwaway discarding stack and is never visible to Current.
func Open(ctx context.Context, name string, opts ...OpenOption) *Scope {
	return FromContext(ctx).Open(name, opts...)
}

// Current returns the active scope of the stack carried by ctx. It is always
// nil when ctx carries no stack.
func Current(ctx context.Context) *Scope {
	return FromContext(ctx).Current()
}

// Run opens a scope, runs fn inside it and disposes the scope on every exit
// path. An error returned by fn is written through the scope and returned.
func Run(ctx context.Context, name string, fn func(*Scope) error, opts ...OpenOption) error {
	s := Open(ctx, name, opts...)
	defer s.Dispose()

	if err := fn(s); err != nil {
		s.Error("failed", err)
		return err
	}
	return nil
}
