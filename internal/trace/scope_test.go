package trace

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 1, 2, 10, 11, 12, 345_000_000, time.UTC)

func newTestClock() func() time.Time {
	return func() time.Time { return testEpoch }
}

func newTestStack(t *testing.T, v Verbosity, opts ...Option) (*Stack, *MemorySink) {
	t.Helper()
	sink := NewMemorySink()
	base := []Option{WithVerbosity(v), WithClock(newTestClock())}
	return NewStack(sink, append(base, opts...)...), sink
}

func TestDepthFollowsNesting(t *testing.T) {
	st, _ := newTestStack(t, Regular)

	root := st.Open("root")
	child := st.Open("child")
	grandchild := st.Open("grandchild")

	assert.Equal(t, 0, root.Depth())
	assert.Equal(t, 1, child.Depth())
	assert.Equal(t, 2, grandchild.Depth())
	assert.Same(t, child, grandchild.Parent())
	assert.True(t, grandchild.IsChildOf(root))
	assert.False(t, root.IsChildOf(grandchild))

	grandchild.Dispose()
	child.Dispose()
	sibling := st.Open("sibling")
	assert.Equal(t, 1, sibling.Depth())
	sibling.Dispose()
	root.Dispose()

	again := st.Open("again")
	assert.Equal(t, 0, again.Depth())
	assert.Nil(t, again.Parent())
}

func TestInterruptableRootHasDepthZero(t *testing.T) {
	st, _ := newTestStack(t, Regular)

	outer := st.Open("outer")
	inner := st.Open("inner")
	task := st.Open("task", Interruptable())
	step := st.Open("step")

	assert.Equal(t, 1, inner.Depth())
	assert.Equal(t, 0, task.Depth())
	assert.Equal(t, 1, step.Depth())
	assert.Same(t, inner, task.Parent())

	lane, ok := step.Lane()
	require.True(t, ok)
	assert.Equal(t, 0, lane)
	_, ok = outer.Lane()
	assert.False(t, ok)
}

func TestDisposeIsIdempotent(t *testing.T) {
	st, sink := newTestStack(t, Verbose)

	root := st.Open("root")
	child := st.Open("child")
	child.Write("work")

	child.Dispose()
	once := sink.Lines()
	child.Dispose()
	child.Dispose()

	assert.Equal(t, once, sink.Lines())
	assert.Same(t, root, st.Current())
	assert.True(t, child.IsDisposed())
	assert.Equal(t, StateDisposed, child.State())

	root.Dispose()
	root.Dispose()
	assert.Nil(t, st.Current())
	assert.Len(t, sink.Lines(), 5)
}

func TestDisposeRestoresNearestLivePrevious(t *testing.T) {
	st, _ := newTestStack(t, Regular)

	a := st.Open("a")
	b := st.Open("b")
	c := st.Open("c")

	// b goes first while c is still current: b is an ancestor of current.
	b.Dispose()
	assert.Same(t, a, st.Current())

	// c is no longer on the current branch, disposing it leaves current alone.
	c.Dispose()
	assert.Same(t, a, st.Current())

	d := st.Open("d")
	e := st.Open("e")
	d.Dispose()
	assert.Same(t, a, st.Current())
	assert.Equal(t, StateInterrupted, e.State(), "a detached descendant reads as interrupted")
}

func TestLanesUseSmallestFreeIndex(t *testing.T) {
	st, _ := newTestStack(t, Regular)

	scopes := make([]*Scope, 4)
	for i := range scopes {
		scopes[i] = st.Open("task", Interruptable())
		lane, ok := scopes[i].Lane()
		require.True(t, ok)
		require.Equal(t, i, lane)
	}
	assert.Equal(t, 4, len(st.Lanes()))

	scopes[1].Dispose()
	again := st.Open("again", Interruptable())
	lane, _ := again.Lane()
	assert.Equal(t, 1, lane)

	next := st.Open("next", Interruptable())
	lane, _ = next.Lane()
	assert.Equal(t, 4, lane)
}

func TestInterruptResumeRoundTrip(t *testing.T) {
	st, _ := newTestStack(t, Regular)

	host := st.Open("host")
	task := st.Open("task", Interruptable())
	require.Same(t, host, task.Previous())

	require.NoError(t, task.Interrupt())
	assert.Same(t, host, st.Current())
	assert.Equal(t, StateInterrupted, task.State())
	assert.Equal(t, testEpoch, task.InterruptedAt())

	other := st.Open("other")
	require.NoError(t, task.Resume())
	assert.Same(t, task, st.Current())
	assert.Same(t, other, task.Previous(), "Previous is what was current at Resume")
	assert.Equal(t, StateActive, task.State())

	require.NoError(t, task.Interrupt())
	assert.Same(t, other, st.Current())
	require.NoError(t, task.Resume())
	assert.Same(t, task, st.Current())
}

func TestLinksSurviveDroppedScopes(t *testing.T) {
	st, sink := newTestStack(t, Regular)

	root := st.Open("root")
	task := st.Open("task", Interruptable())
	require.NoError(t, task.Interrupt())

	// Resume from inside a scope that is then disposed and forgotten, so the
	// only path back to root runs through it.
	func() {
		x := st.Open("x")
		require.NoError(t, task.Resume())
		x.Dispose()
	}()
	runtime.GC()
	runtime.GC()

	require.NoError(t, task.Interrupt())
	assert.Same(t, root, st.Current())

	require.NoError(t, task.Resume())
	var child *Scope
	func() {
		mid := st.Open("mid")
		child = st.Open("child")
		mid.Dispose()
	}()
	runtime.GC()
	runtime.GC()

	assert.Same(t, task, st.Current())
	lane, ok := child.Lane()
	require.True(t, ok)
	assert.Equal(t, 0, lane)
	assert.True(t, child.IsChildOf(task))
	assert.True(t, child.IsChildOf(root))

	child.Write("late")
	lines := sink.Lines()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[len(lines)-1], "late")

	child.Dispose()
	require.NoError(t, task.Interrupt())
	assert.Same(t, root, st.Current())
	task.Dispose()
	root.Dispose()
	assert.Nil(t, st.Current())
	assert.Empty(t, st.Lanes())
}

func TestInterruptProtocolViolations(t *testing.T) {
	st, _ := newTestStack(t, Regular)

	plain := st.Open("plain")
	err := plain.Interrupt()
	require.ErrorIs(t, err, ErrInvalidOperation)

	task := st.Open("task", Interruptable())
	require.NoError(t, task.Interrupt())
	require.ErrorIs(t, task.Interrupt(), ErrInvalidOperation, "interrupting a detached scope")

	require.NoError(t, task.Resume())
	require.ErrorIs(t, task.Resume(), ErrInvalidOperation, "redundant resume")

	child := st.Open("child")
	require.ErrorIs(t, task.Resume(), ErrInvalidOperation, "ancestor of current is active")

	child.Dispose()
	task.Dispose()
	require.ErrorIs(t, task.Interrupt(), ErrInvalidOperation)
	require.ErrorIs(t, task.Resume(), ErrInvalidOperation)

	var nilScope *Scope
	require.ErrorIs(t, nilScope.Interrupt(), ErrInvalidOperation)
	nilScope.Dispose()
	nilScope.Write("ignored")
}

func TestDeferredScopeWithoutMessagesEmitsNothing(t *testing.T) {
	st, sink := newTestStack(t, Regular)

	load := st.Open("Load", Deferred())
	load.Dispose()

	assert.Zero(t, sink.Len())
	assert.False(t, load.HasStarted())
}

func TestDeferredScopeStartsOnFirstWrite(t *testing.T) {
	st, sink := newTestStack(t, Regular)

	load := st.Open("Load", Deferred())
	load.Write("ok")
	load.Dispose()

	lines := sink.Lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Load")
	assert.Contains(t, lines[0], GlyphsUnicode.Enter)
	assert.Contains(t, lines[1], "ok")
	assert.Contains(t, lines[2], GlyphsUnicode.Leave+"Load")
}

func TestLaneHeldUntilDispose(t *testing.T) {
	for _, order := range []string{"a-first", "b-first"} {
		t.Run(order, func(t *testing.T) {
			st, _ := newTestStack(t, Regular)

			a := st.Open("A", Interruptable())
			b := st.Open("B", Interruptable())
			laneA, _ := a.Lane()
			laneB, _ := b.Lane()
			require.Equal(t, 0, laneA)
			require.Equal(t, 1, laneB)
			require.NotSame(t, a, st.Current())

			require.NoError(t, a.Interrupt())
			require.NoError(t, a.Resume())
			assert.Same(t, a, st.Current())

			probe := st.Open("probe", Interruptable())
			lane, _ := probe.Lane()
			assert.Equal(t, 2, lane, "lane 0 stays with A while it lives")
			probe.Dispose()

			if order == "a-first" {
				a.Dispose()
				assert.Equal(t, []int{1}, st.lanes.Indices())
				b.Dispose()
			} else {
				b.Dispose()
				assert.Equal(t, []int{0}, st.lanes.Indices())
				a.Dispose()
			}
			assert.Empty(t, st.Lanes())

			reused := st.Open("C", Interruptable())
			lane, _ = reused.Lane()
			assert.Equal(t, 0, lane)
		})
	}
}

func TestWarningsAndErrorsOnly(t *testing.T) {
	st, sink := newTestStack(t, WarningsAndErrorsOnly)

	s := st.Open("Load", Eager())
	s.Write("quiet")
	s.Writef("quiet %d", 2)
	s.Debug("quieter")
	assert.Zero(t, sink.Len())

	s.Warn("careful")
	recs := sink.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, SevLine, recs[0].Severity)
	assert.Contains(t, recs[0].Text, "Load")
	assert.Equal(t, SevWarning, recs[1].Severity)
	assert.Contains(t, recs[1].Text, "careful")

	s.Error("broken", errors.New("disk full"))
	recs = sink.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, SevError, recs[2].Severity)
	assert.Contains(t, recs[2].Text, "broken: disk full")
}

func TestVerbosityStartPolicy(t *testing.T) {
	t.Run("verbose starts eagerly", func(t *testing.T) {
		st, sink := newTestStack(t, Verbose)
		s := st.Open("eager")
		assert.True(t, s.HasStarted())
		assert.Equal(t, 1, sink.Len())

		lazy := st.Open("lazy", Deferred())
		assert.False(t, lazy.HasStarted())
		lazy.Debug("details")
		assert.True(t, lazy.HasStarted())
		assert.Equal(t, 3, sink.Len())
	})
	t.Run("regular defers and hides debug", func(t *testing.T) {
		st, sink := newTestStack(t, Regular)
		s := st.Open("lazy")
		s.Debug("hidden")
		s.Debugf("hidden %d", 1)
		assert.False(t, s.HasStarted())
		assert.Zero(t, sink.Len())

		eager := st.Open("eager", Eager())
		assert.True(t, eager.HasStarted())
		assert.True(t, s.HasStarted(), "starting a child starts its ancestors")
		assert.Equal(t, 2, sink.Len())
	})
}

func TestLazyStartEmitsAncestorsFirst(t *testing.T) {
	st, sink := newTestStack(t, Regular)

	outer := st.Open("outer")
	inner := st.Open("inner")
	inner.Write("msg")

	lines := sink.Lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "outer")
	assert.Contains(t, lines[1], "inner")
	assert.Contains(t, lines[2], "msg")
	assert.True(t, outer.HasStarted())
}

func TestDomainAndTagInheritance(t *testing.T) {
	st, _ := newTestStack(t, Regular, WithDefaultDomain("app"))

	root := st.Open("root", WithTags("b", "a", "b"))
	assert.Equal(t, "app", root.Domain())
	assert.Equal(t, []string{"b", "a"}, root.Tags())

	io := st.Open("io", InDomain("io"), WithTags("disk"))
	assert.Equal(t, "io", io.Domain())
	assert.Equal(t, []string{"b", "a", "disk"}, io.Tags())

	io.Tag("late", "a")
	leaf := st.Open("leaf")
	assert.Equal(t, "io", leaf.Domain())
	assert.Equal(t, []string{"b", "a", "disk", "late"}, leaf.Tags())
	assert.Equal(t, []string{"b", "a"}, root.Tags(), "parents never see child tags")

	// Decomposed and precomposed forms are the same tag.
	leaf.Tag("caf\u00e9", "cafe\u0301")
	assert.Len(t, leaf.Tags(), 5)
}

func TestErrorFormatting(t *testing.T) {
	st, sink := newTestStack(t, Regular)
	s := st.Open("s")

	s.Error("", errors.New("only cause"))
	s.Error("only message", nil)
	lines := sink.Lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "only cause")
	assert.Contains(t, lines[2], "only message")
}

func TestScopeIDsAreMonotonic(t *testing.T) {
	st, _ := newTestStack(t, Regular)
	a := st.Open("a")
	b := st.Open("b")
	assert.Less(t, a.ID(), b.ID())
	var nilScope *Scope
	assert.Zero(t, nilScope.ID())
}
