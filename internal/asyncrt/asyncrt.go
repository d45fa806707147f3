package asyncrt

import (
	"cmp"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"lanetrace/internal/logging"
	"lanetrace/internal/trace"
)

// Executor runs cooperative tasks on a single goroutine with a deterministic
// FIFO scheduler by default. Fuzz scheduling picks a random ready task from a
// seeded source for reproducible interleavings.
//
// When a trace stack is attached, every task owns an interruptable root
// scope: it is resumed before each poll and interrupted when the poll yields
// or parks, so lines written by interleaved tasks keep their own lanes.
type Executor struct {
	cfg      Config
	clock    Clock
	epoch    time.Time
	stack    *trace.Stack
	log      *slog.Logger
	nextID   TaskID
	ready    []TaskID
	readySet map[TaskID]struct{}
	tasks    map[TaskID]*Task
	waiters  map[WakerKey][]TaskID
	parked   map[TaskID]WakerKey
	current  TaskID
	rng      *rand.Rand

	timers      timerHeap
	timerByID   map[TimerID]*Timer
	nextTimerID TimerID
}

// TaskID identifies a spawned task.
type TaskID uint64

// TaskStatus describes task scheduling state.
type TaskStatus uint8

const (
	TaskReady TaskStatus = iota
	TaskRunning
	TaskWaiting
	TaskDone
)

// String returns the string representation of TaskStatus.
func (s TaskStatus) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskDone:
		return "done"
	default:
		return "unknown"
	}
}

// TaskResultKind describes how a task completed.
type TaskResultKind uint8

const (
	TaskResultSuccess TaskResultKind = iota
	TaskResultCancelled
	TaskResultFailed
)

// Task stores executor-visible task state.
type Task struct {
	ID          TaskID
	Name        string
	State       any
	ResultKind  TaskResultKind
	ResultValue any
	Err         error
	Status      TaskStatus
	Cancelled   bool
	Parent      TaskID
	Children    []TaskID
	Polls       int

	poll  PollFunc
	scope *trace.Scope
	top   *trace.Scope // innermost open scope when the task last left the CPU
}

// Scope returns the task's root scope, or nil without tracing.
func (t *Task) Scope() *trace.Scope {
	if t == nil {
		return nil
	}
	return t.scope
}

// Config configures executor scheduling behavior.
type Config struct {
	Fuzz   bool
	Seed   uint64
	Clock  Clock        // default: virtual clock
	Epoch  time.Time    // wall time of virtual zero (default DefaultEpoch)
	Logger *slog.Logger // scheduler diagnostics
}

// DefaultEpoch anchors virtual time so traces are reproducible.
var DefaultEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewExecutor constructs an executor with the provided configuration.
func NewExecutor(cfg Config) *Executor {
	exec := &Executor{
		cfg:      cfg,
		clock:    cfg.Clock,
		epoch:    cfg.Epoch,
		log:      cfg.Logger,
		nextID:   1,
		readySet: make(map[TaskID]struct{}),
		tasks:    make(map[TaskID]*Task),
	}
	if exec.clock == nil {
		exec.clock = &VirtualClock{}
	}
	if exec.epoch.IsZero() {
		exec.epoch = DefaultEpoch
		if _, wall := exec.clock.(*RealClock); wall {
			exec.epoch = time.Now()
		}
	}
	if exec.log == nil {
		exec.log = logging.NewNop()
	}
	if cfg.Fuzz {
		seed := cfg.Seed
		if seed == 0 {
			seed = 1
		}
		exec.rng = rand.New(rand.NewSource(int64(seed))) //nolint:gosec // deterministic scheduler seed
	}
	return exec
}

// AttachTrace makes every task spawned from now on open a lane on st.
func (e *Executor) AttachTrace(st *trace.Stack) {
	e.stack = st
}

// Stack returns the attached trace stack, or nil.
func (e *Executor) Stack() *trace.Stack { return e.stack }

// Current returns the ID of the task being polled.
func (e *Executor) Current() TaskID {
	if e == nil {
		return 0
	}
	return e.current
}

// Task returns a task by ID.
func (e *Executor) Task(id TaskID) *Task {
	if e == nil {
		return nil
	}
	return e.tasks[id]
}

// Spawn registers a task and enqueues it for execution. With tracing, the
// task's root scope is opened under whatever scope is current and detached
// immediately; the spawner keeps running in its own scope.
func (e *Executor) Spawn(name string, fn PollFunc, state any, opts ...trace.OpenOption) TaskID {
	if e == nil || fn == nil {
		return 0
	}
	id := e.nextID
	e.nextID++

	task := &Task{
		ID:     id,
		Name:   name,
		State:  state,
		Status: TaskReady,
		poll:   fn,
	}
	e.tasks[id] = task
	if e.current != 0 {
		if parent := e.tasks[e.current]; parent != nil {
			parent.Children = append(parent.Children, id)
			task.Parent = parent.ID
		}
	}
	if e.stack != nil {
		task.scope = e.stack.Open(name, append([]trace.OpenOption{trace.Interruptable()}, opts...)...)
		task.top = task.scope
		if err := task.scope.Interrupt(); err != nil {
			e.log.Warn("detach spawned task", "task", id, "err", err)
		}
	}
	e.log.Debug("spawn", "task", id, "name", name, "parent", task.Parent)
	e.enqueue(id)
	return id
}

// NextReady returns the next ready task according to scheduler policy.
func (e *Executor) NextReady() (TaskID, bool) {
	if e == nil || len(e.ready) == 0 {
		return 0, false
	}
	for len(e.ready) > 0 {
		idx := 0
		if e.rng != nil {
			idx = e.rng.Intn(len(e.ready))
		}
		id := e.ready[idx]
		e.ready = slices.Delete(e.ready, idx, idx+1)
		delete(e.readySet, id)
		task := e.tasks[id]
		if task == nil || task.Status == TaskDone {
			continue
		}
		return id, true
	}
	return 0, false
}

// Wake enqueues a task if it is not done.
func (e *Executor) Wake(id TaskID) {
	if e == nil {
		return
	}
	task := e.tasks[id]
	if task == nil || task.Status == TaskDone {
		return
	}
	if key, ok := e.parked[id]; ok {
		e.removeWaiter(key, id)
		delete(e.parked, id)
	}
	e.enqueue(id)
}

// WakeKeyOne wakes the oldest task waiting on a key.
func (e *Executor) WakeKeyOne(key WakerKey) {
	if e == nil || !key.IsValid() {
		return
	}
	waiters := e.waiters[key]
	if len(waiters) == 0 {
		return
	}
	e.Wake(waiters[0])
}

// WakeKeyAll wakes all tasks waiting on a key.
func (e *Executor) WakeKeyAll(key WakerKey) {
	if e == nil || !key.IsValid() {
		return
	}
	waiters := e.waiters[key]
	if len(waiters) == 0 {
		return
	}
	delete(e.waiters, key)
	for _, id := range waiters {
		delete(e.parked, id)
		e.Wake(id)
	}
}

// Cancel marks a task and its descendants as cancelled. Parked tasks are
// woken so that they finish on their next turn.
func (e *Executor) Cancel(id TaskID) {
	if e == nil {
		return
	}
	task := e.tasks[id]
	if task == nil || task.Status == TaskDone {
		return
	}
	task.Cancelled = true
	if task.Status == TaskWaiting {
		e.Wake(id)
	}
	for _, child := range task.Children {
		e.Cancel(child)
	}
}

// Live returns the tasks that have not finished, in spawn order.
func (e *Executor) Live() []*Task {
	var out []*Task
	for _, task := range e.tasks {
		if task.Status != TaskDone {
			out = append(out, task)
		}
	}
	slices.SortFunc(out, func(a, b *Task) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// ParkedOn returns the key a task waits on.
func (e *Executor) ParkedOn(id TaskID) (WakerKey, bool) {
	key, ok := e.parked[id]
	return key, ok
}

// markDone marks a task as completed and wakes join waiters.
func (e *Executor) markDone(task *Task, kind TaskResultKind, result any) {
	task.ResultKind = kind
	task.ResultValue = result
	task.Status = TaskDone
	if key, ok := e.parked[task.ID]; ok {
		e.removeWaiter(key, task.ID)
		delete(e.parked, task.ID)
	}
	e.WakeKeyAll(JoinKey(task.ID))
}

func (e *Executor) enqueue(id TaskID) {
	if _, ok := e.readySet[id]; ok {
		return
	}
	e.ready = append(e.ready, id)
	e.readySet[id] = struct{}{}
	if task := e.tasks[id]; task != nil && task.Status != TaskDone {
		task.Status = TaskReady
	}
}

func (e *Executor) parkTask(id TaskID, key WakerKey) {
	task := e.tasks[id]
	if task == nil || task.Status == TaskDone {
		return
	}
	if e.waiters == nil {
		e.waiters = make(map[WakerKey][]TaskID)
	}
	if e.parked == nil {
		e.parked = make(map[TaskID]WakerKey)
	}
	if prev, ok := e.parked[id]; ok {
		if prev == key {
			task.Status = TaskWaiting
			return
		}
		e.removeWaiter(prev, id)
	}
	e.parked[id] = key
	e.waiters[key] = append(e.waiters[key], id)
	task.Status = TaskWaiting
}

func (e *Executor) removeWaiter(key WakerKey, id TaskID) {
	waiters := e.waiters[key]
	if i := slices.Index(waiters, id); i >= 0 {
		waiters = slices.Delete(waiters, i, i+1)
	}
	if len(waiters) == 0 {
		delete(e.waiters, key)
		return
	}
	e.waiters[key] = waiters
}
