package asyncrt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lanetrace/internal/trace"
)

// ErrDeadlock reports that tasks remain parked with nothing left to wake them.
var ErrDeadlock = errors.New("deadlock")

// Run polls ready tasks until none are left or ctx is done. When only parked
// tasks remain and no timer is pending, it returns an error wrapping
// ErrDeadlock; the scopes of those tasks stay interrupted.
func (e *Executor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok := e.NextReady()
		if ok {
			e.poll(e.tasks[id])
			continue
		}
		advanced, err := e.advanceToNextTimer(ctx)
		if err != nil {
			return err
		}
		if advanced {
			continue
		}
		if live := e.Live(); len(live) > 0 {
			return e.deadlock(live)
		}
		return nil
	}
}

func (e *Executor) deadlock(live []*Task) error {
	parts := make([]string, 0, len(live))
	for _, task := range live {
		key, _ := e.ParkedOn(task.ID)
		parts = append(parts, fmt.Sprintf("%s#%d on %s", task.Name, task.ID, key.Kind))
	}
	e.log.Warn("deadlock", "parked", len(live))
	return fmt.Errorf("%w: %d task(s) parked: %s", ErrDeadlock, len(live), strings.Join(parts, ", "))
}

func (e *Executor) poll(task *Task) {
	e.current = task.ID
	task.Status = TaskRunning
	task.Polls++
	defer func() { e.current = 0 }()

	e.enter(task)
	if task.Cancelled {
		e.finish(task, TaskResultCancelled, nil, nil)
		return
	}

	out, err := e.invoke(task)
	if err != nil {
		e.finish(task, TaskResultFailed, nil, err)
		return
	}
	switch out.Kind {
	case PollDoneSuccess:
		e.finish(task, TaskResultSuccess, out.Value, nil)
	case PollDoneFailed:
		e.finish(task, TaskResultFailed, out.Value, out.Err)
	case PollParked:
		e.leave(task)
		e.parkTask(task.ID, out.ParkKey)
	default:
		e.leave(task)
		e.enqueue(task.ID)
	}
}

// invoke calls the poll function, turning a panic into a task failure.
func (e *Executor) invoke(task *Task) (out PollOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s#%d panicked: %v", task.Name, task.ID, r)
		}
	}()
	return task.poll(&TaskContext{exec: e, task: task}), nil
}

// enter makes the task's scope chain current again, outermost first, so the
// nesting it had when it last left is restored.
func (e *Executor) enter(task *Task) {
	root := task.scope
	if root == nil {
		return
	}
	if err := root.Resume(); err != nil {
		e.log.Warn("resume task scope", "task", task.ID, "err", err)
		return
	}
	var chain []*trace.Scope
	for s := task.top; s != nil && s != root; s = s.Parent() {
		if !s.IsChildOf(root) {
			chain = nil
			break
		}
		chain = append(chain, s)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].IsDisposed() {
			continue
		}
		if err := chain[i].Resume(); err != nil {
			e.log.Warn("resume nested scope", "task", task.ID, "scope", chain[i].Name(), "err", err)
		}
	}
}

// leave remembers the innermost open scope of the task and detaches it.
func (e *Executor) leave(task *Task) {
	root := task.scope
	if root == nil {
		return
	}
	task.top = root
	if cur := e.stack.Current(); cur != nil && cur.IsChildOf(root) {
		task.top = cur
	}
	if err := root.Interrupt(); err != nil {
		e.log.Warn("interrupt task scope", "task", task.ID, "err", err)
	}
}

// finish closes scopes the task left open, then its root, then wakes joiners.
func (e *Executor) finish(task *Task, kind TaskResultKind, value any, err error) {
	task.Err = err
	if root := task.scope; root != nil {
		for {
			cur := e.stack.Current()
			if cur == nil || cur == root || !cur.IsChildOf(root) {
				break
			}
			cur.Dispose()
		}
		switch kind {
		case TaskResultCancelled:
			root.Warn("cancelled")
		case TaskResultFailed:
			root.Error("failed", err)
		}
		root.Dispose()
		task.top = nil
	}
	e.log.Debug("task done", "task", task.ID, "name", task.Name, "polls", task.Polls, "err", err)
	e.markDone(task, kind, value)
}
