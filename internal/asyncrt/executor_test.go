package asyncrt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanetrace/internal/trace"
)

func tracedExecutor(t *testing.T, cfg Config, v trace.Verbosity) (*Executor, *trace.Stack, *trace.MemorySink) {
	t.Helper()
	exec := NewExecutor(cfg)
	r := trace.NewRenderer()
	r.Glyphs = trace.GlyphsASCII
	r.ChannelWidth = 4
	sink := trace.NewMemorySink()
	st := trace.NewStack(sink, trace.WithVerbosity(v), trace.WithClock(exec.Now), trace.WithRenderer(r))
	exec.AttachTrace(st)
	return exec, st, sink
}

// steps polls each function once, in order.
func steps(fns ...PollFunc) PollFunc {
	i := 0
	return func(tc *TaskContext) PollOutcome {
		fn := fns[min(i, len(fns)-1)]
		i++
		return fn(tc)
	}
}

func write(msg string, then func(*TaskContext) PollOutcome) PollFunc {
	return func(tc *TaskContext) PollOutcome {
		tc.Scope().Write(msg)
		return then(tc)
	}
}

func yield(tc *TaskContext) PollOutcome { return tc.Yield() }
func done(tc *TaskContext) PollOutcome { return tc.Done(nil) }

func TestInterleavedTasksKeepTheirLanes(t *testing.T) {
	exec, st, sink := tracedExecutor(t, Config{}, trace.Regular)

	exec.Spawn("a", steps(write("a1", yield), write("a2", done)), nil)
	exec.Spawn("b", steps(write("b1", yield), write("b2", done)), nil)
	require.NoError(t, exec.Run(context.Background()))

	assert.Equal(t, []string{
		"[main] 00:00:00.000 /    >> a",
		"[main] 00:00:00.000 +    a1",
		"[main] 00:00:00.000 |/   >> b",
		"[main] 00:00:00.000 |+   b1",
		"[main] 00:00:00.000 +|   a2",
		"[main] 00:00:00.000 \\|   << a (0s)",
		"[main] 00:00:00.000  +   b2",
		"[main] 00:00:00.000  \\   << b (0s)",
	}, sink.Lines())
	assert.Empty(t, st.Lanes())
	assert.Nil(t, st.Current())
}

func TestPollIsBracketedByResumeAndInterrupt(t *testing.T) {
	exec, st, _ := tracedExecutor(t, Config{}, trace.Regular)

	var during, after []trace.State
	var self *trace.Scope
	id := exec.Spawn("task", func(tc *TaskContext) PollOutcome {
		self = tc.Scope()
		during = append(during, self.State())
		assert.Same(t, self, st.Current())
		if tc.Task().Polls < 3 {
			return tc.Yield()
		}
		return tc.Done("ok")
	}, nil)
	exec.Spawn("observer", steps(
		func(tc *TaskContext) PollOutcome {
			after = append(after, self.State())
			return tc.Yield()
		},
		func(tc *TaskContext) PollOutcome {
			after = append(after, self.State())
			return tc.Done(nil)
		},
	), nil)

	require.NoError(t, exec.Run(context.Background()))
	assert.Equal(t, []trace.State{trace.StateActive, trace.StateActive, trace.StateActive}, during)
	assert.Equal(t, []trace.State{trace.StateInterrupted, trace.StateInterrupted}, after)
	assert.Equal(t, trace.StateDisposed, self.State())

	task := exec.Task(id)
	assert.Equal(t, TaskDone, task.Status)
	assert.Equal(t, TaskResultSuccess, task.ResultKind)
	assert.Equal(t, "ok", task.ResultValue)
	assert.Equal(t, 3, task.Polls)
}

func TestSleepUsesVirtualTime(t *testing.T) {
	exec, _, sink := tracedExecutor(t, Config{}, trace.Regular)

	exec.Spawn("slow", steps(
		func(tc *TaskContext) PollOutcome { return tc.Sleep(50 * time.Millisecond) },
		write("slow woke", done),
	), nil)
	exec.Spawn("fast", steps(
		func(tc *TaskContext) PollOutcome { return tc.Sleep(10 * time.Millisecond) },
		write("fast woke", done),
	), nil)
	require.NoError(t, exec.Run(context.Background()))

	lines := sink.Lines()
	require.Len(t, lines, 6)
	assert.Contains(t, lines[1], "00:00:00.010")
	assert.Contains(t, lines[1], "fast woke")
	assert.Contains(t, lines[2], "(10ms)")
	assert.Contains(t, lines[4], "00:00:00.050")
	assert.Contains(t, lines[4], "slow woke")
	assert.Contains(t, lines[5], "(50ms)")
	assert.Equal(t, uint64(50), exec.NowMs())
}

func TestJoinWaitsForChild(t *testing.T) {
	exec, _, sink := tracedExecutor(t, Config{}, trace.Regular)

	var child TaskID
	parent := exec.Spawn("parent", steps(
		func(tc *TaskContext) PollOutcome {
			child = tc.Spawn("child", steps(write("child ran", yield), done), nil)
			if out, ok := tc.Join(child); !ok {
				return out
			}
			t.Fatal("child finished before it ran")
			return tc.Done(nil)
		},
		func(tc *TaskContext) PollOutcome {
			_, ok := tc.Join(child)
			require.True(t, ok)
			tc.Scope().Write("joined")
			return tc.Done(nil)
		},
	), nil)
	require.NoError(t, exec.Run(context.Background()))

	assert.Equal(t, parent, exec.Task(child).Parent)
	assert.Equal(t, []TaskID{child}, exec.Task(parent).Children)

	lines := sink.Lines()
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], ">> parent")
	assert.Contains(t, lines[1], ">> child")
	assert.Contains(t, lines[2], "child ran")
	assert.Contains(t, lines[3], "<< child")
	assert.Contains(t, lines[4], "joined")
	assert.Contains(t, lines[5], "<< parent")
}

func TestDeadlockLeavesScopesInterrupted(t *testing.T) {
	exec, st, _ := tracedExecutor(t, Config{}, trace.Regular)

	exec.Spawn("waiter", func(tc *TaskContext) PollOutcome { return tc.Wait("never") }, nil)
	err := exec.Run(context.Background())

	require.ErrorIs(t, err, ErrDeadlock)
	assert.Contains(t, err.Error(), "waiter#1 on signal")
	require.Len(t, st.Lanes(), 1)
	stalled := st.Stalled(0)
	require.Len(t, stalled, 1)
	assert.Equal(t, "waiter", stalled[0].Name())
	assert.Len(t, exec.Live(), 1)
}

func TestCancelParkedTask(t *testing.T) {
	exec, st, sink := tracedExecutor(t, Config{}, trace.Regular)

	victim := exec.Spawn("victim", func(tc *TaskContext) PollOutcome { return tc.Wait("go") }, nil)
	exec.Spawn("killer", func(tc *TaskContext) PollOutcome {
		tc.Executor().Cancel(victim)
		return tc.Done(nil)
	}, nil)
	require.NoError(t, exec.Run(context.Background()))

	task := exec.Task(victim)
	assert.Equal(t, TaskResultCancelled, task.ResultKind)
	assert.True(t, task.Cancelled)
	assert.Empty(t, st.Lanes())

	recs := sink.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, trace.SevWarning, recs[1].Severity)
	assert.Contains(t, recs[1].Text, "cancelled")
}

func TestNestedScopesSurviveYield(t *testing.T) {
	exec, st, sink := tracedExecutor(t, Config{}, trace.Regular)

	var inner *trace.Scope
	exec.Spawn("task", steps(
		func(tc *TaskContext) PollOutcome {
			inner = tc.Stack().Open("inner")
			inner.Write("x")
			return tc.Yield()
		},
		func(tc *TaskContext) PollOutcome {
			assert.Same(t, inner, tc.Stack().Current())
			deeper := tc.Stack().Open("deeper")
			deeper.Write("y")
			return tc.Yield()
		},
		func(tc *TaskContext) PollOutcome {
			tc.Stack().Current().Dispose()
			assert.Same(t, inner, tc.Stack().Current())
			inner.Dispose()
			assert.Same(t, tc.Scope(), tc.Stack().Current())
			return tc.Done(nil)
		},
	), nil)
	exec.Spawn("other", steps(write("o1", yield), write("o2", done)), nil)
	require.NoError(t, exec.Run(context.Background()))

	assert.Nil(t, st.Current())
	assert.Empty(t, st.Lanes())
	lines := sink.Lines()
	require.Len(t, lines, 12)
	assert.Contains(t, lines[9], "< deeper")
	assert.Contains(t, lines[10], "< inner")
	assert.Contains(t, lines[11], "<< task")
}

func TestFinishClosesLeftoverScopes(t *testing.T) {
	exec, st, sink := tracedExecutor(t, Config{}, trace.Regular)

	exec.Spawn("leaky", func(tc *TaskContext) PollOutcome {
		tc.Stack().Open("left").Write("open")
		return tc.Done(nil)
	}, nil)
	require.NoError(t, exec.Run(context.Background()))

	lines := sink.Lines()
	require.Len(t, lines, 5)
	assert.Contains(t, lines[3], "< left")
	assert.Contains(t, lines[4], "<< leaky")
	assert.Nil(t, st.Current())
}

func TestPanickingPollFailsTask(t *testing.T) {
	exec, _, sink := tracedExecutor(t, Config{}, trace.Regular)

	id := exec.Spawn("boom", func(*TaskContext) PollOutcome { panic("bad state") }, nil)
	failing := exec.Spawn("fails", func(tc *TaskContext) PollOutcome { return tc.Fail(errors.New("no disk")) }, nil)
	require.NoError(t, exec.Run(context.Background()))

	task := exec.Task(id)
	assert.Equal(t, TaskResultFailed, task.ResultKind)
	require.Error(t, task.Err)
	assert.Contains(t, task.Err.Error(), "panicked: bad state")
	assert.EqualError(t, exec.Task(failing).Err, "no disk")

	var errs int
	for _, rec := range sink.Records() {
		if rec.Severity == trace.SevError {
			errs++
		}
	}
	assert.Equal(t, 2, errs)
}

func TestFuzzScheduleIsReproducible(t *testing.T) {
	order := func(seed uint64) []string {
		exec := NewExecutor(Config{Fuzz: true, Seed: seed})
		var got []string
		for _, name := range []string{"a", "b", "c", "d"} {
			exec.Spawn(name, steps(
				func(tc *TaskContext) PollOutcome {
					got = append(got, name+"1")
					return tc.Yield()
				},
				func(tc *TaskContext) PollOutcome {
					got = append(got, name+"2")
					return tc.Done(nil)
				},
			), nil)
		}
		require.NoError(t, exec.Run(context.Background()))
		return got
	}
	first := order(7)
	assert.Len(t, first, 8)
	assert.Equal(t, first, order(7))
}

func TestExecutorWithoutTrace(t *testing.T) {
	exec := NewExecutor(Config{})
	var ran bool
	id := exec.Spawn("plain", func(tc *TaskContext) PollOutcome {
		ran = true
		assert.Nil(t, tc.Scope())
		return tc.Done(nil)
	}, nil)
	require.NoError(t, exec.Run(context.Background()))
	assert.True(t, ran)
	assert.Equal(t, TaskDone, exec.Task(id).Status)
	assert.Zero(t, exec.Spawn("nil poll", nil, nil))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	exec := NewExecutor(Config{})
	exec.Spawn("spin", func(tc *TaskContext) PollOutcome { return tc.Yield() }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, exec.Run(ctx), context.Canceled)
}
