package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lanetrace/internal/asyncrt"
	"lanetrace/internal/config"
	"lanetrace/internal/logging"
	"lanetrace/internal/trace"
)

// Options configures a run.
type Options struct {
	Trace    trace.Config           // Clock is replaced by the executor clock
	Executor config.ExecutorSection // scheduling and stall reporting
	Hooks    func(clock func() time.Time) trace.Hooks
	Logger   *slog.Logger
}

// TaskResult is the outcome of one declared task.
type TaskResult struct {
	Name   string
	Status string
	Result string
	Err    error
	Polls  int
}

// Result summarizes a run.
type Result struct {
	Name     string
	Elapsed  time.Duration
	Tasks    []TaskResult
	Stalled  []string
	Snapshot trace.Snapshot
	Ring     *trace.RingSink
}

// Failed reports whether any task failed or was left parked.
func (r Result) Failed() bool {
	if len(r.Stalled) > 0 {
		return true
	}
	for _, t := range r.Tasks {
		if t.Status == statusNotStarted {
			continue
		}
		if t.Err != nil || t.Status != asyncrt.TaskDone.String() {
			return true
		}
	}
	return false
}

type taskRun struct {
	def  TaskDef
	pc   int
	open []*trace.Scope // nested scopes the task still holds
}

type runner struct {
	sc    *Scenario
	exec  *asyncrt.Executor
	ids   map[string]asyncrt.TaskID
	log   *slog.Logger
	tasks []*taskRun
}

const statusNotStarted = "not started"

func spawnSignal(name string) string { return "spawn:" + name }

// Run executes sc. The returned error wraps asyncrt.ErrDeadlock when tasks
// were left parked; Result is filled in either way.
func Run(ctx context.Context, sc *Scenario, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	var clock asyncrt.Clock
	if opts.Executor.RealTime {
		clock = asyncrt.NewRealClock()
	}
	exec := asyncrt.NewExecutor(asyncrt.Config{
		Fuzz:   opts.Executor.Fuzz,
		Seed:   opts.Executor.Seed,
		Clock:  clock,
		Logger: log.With("scenario", sc.Name),
	})

	tcfg := opts.Trace
	tcfg.Clock = exec.Now
	if tcfg.Logger == nil {
		tcfg.Logger = log
	}
	if opts.Hooks != nil {
		tcfg.Hooks = trace.MergeHooks(tcfg.Hooks, opts.Hooks(exec.Now))
	}
	st, ring := trace.New(tcfg)
	exec.AttachTrace(st)

	r := &runner{
		sc:   sc,
		exec: exec,
		ids:  make(map[string]asyncrt.TaskID, len(sc.Tasks)),
		log:  log,
	}
	started := exec.Now()
	root := st.Open(sc.Name, trace.Deferred())
	defer root.Dispose()

	for _, def := range sc.Tasks {
		tr := &taskRun{def: def}
		r.tasks = append(r.tasks, tr)
		if def.StartsImmediately() {
			r.ids[def.Name] = exec.Spawn(def.Name, r.poll(tr), tr, taskOptions(def)...)
		}
	}

	runErr := exec.Run(ctx)
	res := Result{Name: sc.Name, Ring: ring}
	if errors.Is(runErr, asyncrt.ErrDeadlock) {
		root.Error("", runErr)
		for _, s := range st.Stalled(opts.Executor.StallAfter.Duration) {
			s.Warnf("stalled since %s", s.InterruptedAt().Format(time.TimeOnly))
			res.Stalled = append(res.Stalled, s.Name())
		}
	}
	if snap, err := st.Snapshot(); err == nil {
		res.Snapshot = snap
	} else {
		log.Warn("snapshot failed", "err", err)
	}
	res.Elapsed = exec.Now().Sub(started)
	res.Tasks = r.results()

	root.Dispose()
	if err := st.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("flush trace: %w", err)
	}
	return res, runErr
}

func taskOptions(def TaskDef) []trace.OpenOption {
	var opts []trace.OpenOption
	if def.Domain != "" {
		opts = append(opts, trace.InDomain(def.Domain))
	}
	if len(def.Tags) > 0 {
		opts = append(opts, trace.WithTags(def.Tags...))
	}
	return opts
}

func (r *runner) results() []TaskResult {
	out := make([]TaskResult, 0, len(r.tasks))
	for _, tr := range r.tasks {
		res := TaskResult{Name: tr.def.Name, Status: statusNotStarted}
		if id, ok := r.ids[tr.def.Name]; ok {
			task := r.exec.Task(id)
			res.Status = task.Status.String()
			res.Err = task.Err
			res.Polls = task.Polls
			if task.Status == asyncrt.TaskDone {
				res.Result = resultName(task.ResultKind)
			}
		}
		out = append(out, res)
	}
	return out
}

func resultName(k asyncrt.TaskResultKind) string {
	switch k {
	case asyncrt.TaskResultCancelled:
		return "cancelled"
	case asyncrt.TaskResultFailed:
		return "failed"
	default:
		return "ok"
	}
}

// poll runs steps until one blocks or the task ends.
func (r *runner) poll(tr *taskRun) asyncrt.PollFunc {
	return func(tc *asyncrt.TaskContext) asyncrt.PollOutcome {
		for tr.pc < len(tr.def.Steps) {
			step := tr.def.Steps[tr.pc]
			act, _ := step.Action()
			if out, block := r.step(tc, tr, act, step); block {
				return out
			}
			tr.pc++
		}
		return tc.Done(nil)
	}
}

// step performs one action. When block is true the task returns out; the
// step advances pc itself if it must not be repeated on the next poll.
func (r *runner) step(tc *asyncrt.TaskContext, tr *taskRun, act Action, step Step) (out asyncrt.PollOutcome, block bool) {
	top := tc.Scope()
	if n := len(tr.open); n > 0 {
		top = tr.open[n-1]
	}
	switch act {
	case ActWrite:
		top.Write(step.Write)
	case ActWarn:
		top.Warn(step.Warn)
	case ActError:
		top.Error(step.Error, nil)
	case ActDebug:
		top.Debug(step.Debug)
	case ActTag:
		top.Tag(step.Tag...)
	case ActOpen:
		var opts []trace.OpenOption
		if step.Domain != "" {
			opts = append(opts, trace.InDomain(step.Domain))
		}
		if len(step.Tags) > 0 {
			opts = append(opts, trace.WithTags(step.Tags...))
		}
		tr.open = append(tr.open, tc.Stack().Open(step.Open, opts...))
	case ActClose:
		if n := len(tr.open); n > 0 {
			tr.open[n-1].Dispose()
			tr.open = tr.open[:n-1]
		}
	case ActYield:
		tr.pc++
		return tc.Yield(), true
	case ActSleep:
		tr.pc++
		return tc.Sleep(step.Sleep.Duration), true
	case ActSpawn:
		r.spawn(tc, step.Spawn)
	case ActJoin:
		id, ok := r.ids[step.Join]
		if !ok {
			return tc.Wait(spawnSignal(step.Join)), true
		}
		if out, done := tc.Join(id); !done {
			return out, true
		}
	case ActWait:
		tr.pc++
		return tc.Wait(step.Wait), true
	case ActNotify:
		tc.Notify(step.Notify)
	case ActFail:
		return tc.Fail(errors.New(step.Fail)), true
	}
	return asyncrt.PollOutcome{}, false
}

func (r *runner) spawn(tc *asyncrt.TaskContext, name string) {
	for _, tr := range r.tasks {
		if tr.def.Name != name {
			continue
		}
		r.ids[name] = tc.Spawn(name, r.poll(tr), tr, taskOptions(tr.def)...)
		tc.Notify(spawnSignal(name))
		r.log.Debug("spawned", "task", name, "by", tc.Task().Name)
		return
	}
}
