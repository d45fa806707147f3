package asyncrt

import (
	"time"

	"fortio.org/safecast"

	"lanetrace/internal/trace"
)

// PollFunc advances a task by one step.
type PollFunc func(tc *TaskContext) PollOutcome

// TaskContext is handed to a PollFunc for the duration of one poll.
type TaskContext struct {
	exec *Executor
	task *Task
}

// ID returns the polled task's ID.
func (tc *TaskContext) ID() TaskID { return tc.task.ID }

// Task returns the polled task.
func (tc *TaskContext) Task() *Task { return tc.task }

// Executor returns the executor running the task.
func (tc *TaskContext) Executor() *Executor { return tc.exec }

// Scope returns the task's root scope, or nil without tracing.
func (tc *TaskContext) Scope() *trace.Scope { return tc.task.scope }

// Stack returns the executor's trace stack, or nil.
func (tc *TaskContext) Stack() *trace.Stack { return tc.exec.stack }

// Cancelled reports whether the task was cancelled.
func (tc *TaskContext) Cancelled() bool { return tc.task.Cancelled }

// Now returns the executor time.
func (tc *TaskContext) Now() time.Time { return tc.exec.Now() }

// Spawn starts a child task. Cancelling this task cancels the child too.
func (tc *TaskContext) Spawn(name string, fn PollFunc, state any, opts ...trace.OpenOption) TaskID {
	return tc.exec.Spawn(name, fn, state, opts...)
}

// Done completes the task successfully.
func (tc *TaskContext) Done(value any) PollOutcome {
	return PollOutcome{Kind: PollDoneSuccess, Value: value}
}

// Fail completes the task with err.
func (tc *TaskContext) Fail(err error) PollOutcome {
	return PollOutcome{Kind: PollDoneFailed, Err: err}
}

// Yield requeues the task behind the other ready tasks.
func (tc *TaskContext) Yield() PollOutcome {
	return PollOutcome{Kind: PollYielded}
}

// Park suspends the task until key is woken.
func (tc *TaskContext) Park(key WakerKey) PollOutcome {
	if !key.IsValid() {
		return tc.Yield()
	}
	return PollOutcome{Kind: PollParked, ParkKey: key}
}

// Sleep parks the task for d of executor time.
func (tc *TaskContext) Sleep(d time.Duration) PollOutcome {
	ms, err := safecast.Conv[uint64](d.Milliseconds())
	if err != nil {
		ms = 0
	}
	id := tc.exec.TimerScheduleAfter(tc.task.ID, ms)
	return tc.Park(TimerKey(id))
}

// Join reports whether target has finished. When it has not, the caller
// should return the outcome, which parks the task until target is done.
func (tc *TaskContext) Join(target TaskID) (PollOutcome, bool) {
	other := tc.exec.tasks[target]
	if other == nil || other.Status == TaskDone {
		return PollOutcome{}, true
	}
	return tc.Park(JoinKey(target)), false
}

// Notify wakes every task waiting on the named signal.
func (tc *TaskContext) Notify(signal string) {
	tc.exec.WakeKeyAll(SignalKey(signal))
}

// Wait parks the task until the named signal is notified.
func (tc *TaskContext) Wait(signal string) PollOutcome {
	return tc.Park(SignalKey(signal))
}
