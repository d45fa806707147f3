// Package scenario runs scripted cooperative tasks on the traced executor.
//
// A scenario is a TOML file declaring tasks, each a list of steps:
//
//	name = "pipeline"
//
//	[[task]]
//	name = "loader"
//	domain = "io"
//	steps = [
//	  { write = "reading header" },
//	  { sleep = "10ms" },
//	  { open = "parse" },
//	  { yield = true },
//	  { close = true },
//	]
//
// Tasks with start = false only run once another task spawns them.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"lanetrace/internal/config"
)

// Scenario is a parsed script.
type Scenario struct {
	Name        string    `toml:"name"`
	Description string    `toml:"description"`
	Tasks       []TaskDef `toml:"task"`

	path string
}

// TaskDef declares one task.
type TaskDef struct {
	Name   string   `toml:"name"`
	Domain string   `toml:"domain"`
	Tags   []string `toml:"tags"`
	Start  *bool    `toml:"start"`
	Steps  []Step   `toml:"steps"`
}

// StartsImmediately reports whether the task is spawned when the run begins.
func (t TaskDef) StartsImmediately() bool {
	return t.Start == nil || *t.Start
}

// Step is one action. Exactly one action field must be set; Domain and Tags
// only qualify Open.
type Step struct {
	Write  string          `toml:"write"`
	Warn   string          `toml:"warn"`
	Error  string          `toml:"error"`
	Debug  string          `toml:"debug"`
	Tag    []string        `toml:"tag"`
	Open   string          `toml:"open"`
	Close  bool            `toml:"close"`
	Yield  bool            `toml:"yield"`
	Sleep  config.Duration `toml:"sleep"`
	Spawn  string          `toml:"spawn"`
	Join   string          `toml:"join"`
	Wait   string          `toml:"wait"`
	Notify string          `toml:"notify"`
	Fail   string          `toml:"fail"`

	Domain string   `toml:"domain"`
	Tags   []string `toml:"tags"`
}

// Action names the step kind.
type Action uint8

const (
	ActNone Action = iota
	ActWrite
	ActWarn
	ActError
	ActDebug
	ActTag
	ActOpen
	ActClose
	ActYield
	ActSleep
	ActSpawn
	ActJoin
	ActWait
	ActNotify
	ActFail
)

var actionNames = [...]string{
	ActNone:   "none",
	ActWrite:  "write",
	ActWarn:   "warn",
	ActError:  "error",
	ActDebug:  "debug",
	ActTag:    "tag",
	ActOpen:   "open",
	ActClose:  "close",
	ActYield:  "yield",
	ActSleep:  "sleep",
	ActSpawn:  "spawn",
	ActJoin:   "join",
	ActWait:   "wait",
	ActNotify: "notify",
	ActFail:   "fail",
}

// String returns the TOML key of the action.
func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Action returns the single action the step performs.
func (s Step) Action() (Action, error) {
	var set []Action
	mark := func(ok bool, a Action) {
		if ok {
			set = append(set, a)
		}
	}
	mark(s.Write != "", ActWrite)
	mark(s.Warn != "", ActWarn)
	mark(s.Error != "", ActError)
	mark(s.Debug != "", ActDebug)
	mark(len(s.Tag) > 0, ActTag)
	mark(s.Open != "", ActOpen)
	mark(s.Close, ActClose)
	mark(s.Yield, ActYield)
	mark(s.Sleep.Duration > 0, ActSleep)
	mark(s.Spawn != "", ActSpawn)
	mark(s.Join != "", ActJoin)
	mark(s.Wait != "", ActWait)
	mark(s.Notify != "", ActNotify)
	mark(s.Fail != "", ActFail)

	switch len(set) {
	case 0:
		return ActNone, fmt.Errorf("step has no action")
	case 1:
		if set[0] != ActOpen && (s.Domain != "" || len(s.Tags) > 0) {
			return ActNone, fmt.Errorf("domain and tags only apply to open, not %s", set[0])
		}
		return set[0], nil
	default:
		names := make([]string, len(set))
		for i, a := range set {
			names[i] = a.String()
		}
		return ActNone, fmt.Errorf("step has several actions: %s", strings.Join(names, ", "))
	}
}

// Load reads and validates a scenario file. A scenario without a name is
// named after its file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.path = path
	if sc.Name == "" {
		sc.Name = baseName(path)
	}
	return sc, nil
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	meta, err := toml.Decode(string(data), &sc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Path returns the file the scenario was loaded from, if any.
func (sc *Scenario) Path() string { return sc.path }

// Task returns the task named name.
func (sc *Scenario) Task(name string) (TaskDef, bool) {
	for _, t := range sc.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskDef{}, false
}

// Validate checks names, references and open/close balance.
func (sc *Scenario) Validate() error {
	if len(sc.Tasks) == 0 {
		return fmt.Errorf("scenario declares no tasks")
	}
	seen := make(map[string]bool, len(sc.Tasks))
	starting := 0
	for _, t := range sc.Tasks {
		if t.Name == "" {
			return fmt.Errorf("task without a name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate task %q", t.Name)
		}
		seen[t.Name] = true
		if t.StartsImmediately() {
			starting++
		}
	}
	if starting == 0 {
		return fmt.Errorf("no task starts immediately")
	}

	spawned := make(map[string]string)
	for _, t := range sc.Tasks {
		depth := 0
		for i, step := range t.Steps {
			where := fmt.Sprintf("task %q step %d", t.Name, i+1)
			act, err := step.Action()
			if err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
			switch act {
			case ActOpen:
				depth++
			case ActClose:
				if depth == 0 {
					return fmt.Errorf("%s: close without open", where)
				}
				depth--
			case ActSpawn:
				target, ok := sc.Task(step.Spawn)
				switch {
				case !ok:
					return fmt.Errorf("%s: spawn of unknown task %q", where, step.Spawn)
				case target.StartsImmediately():
					return fmt.Errorf("%s: task %q already starts immediately", where, step.Spawn)
				case spawned[step.Spawn] != "":
					return fmt.Errorf("%s: task %q is already spawned by %q", where, step.Spawn, spawned[step.Spawn])
				}
				spawned[step.Spawn] = t.Name
			case ActJoin:
				if !seen[step.Join] {
					return fmt.Errorf("%s: join of unknown task %q", where, step.Join)
				}
				if step.Join == t.Name {
					return fmt.Errorf("%s: task joins itself", where)
				}
			}
		}
	}
	return nil
}

func baseName(path string) string {
	name := path
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".toml")
}
