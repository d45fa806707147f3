package trace

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidOperation reports a violation of the interrupt/resume protocol.
var ErrInvalidOperation = errors.New("invalid trace operation")

// State describes where a scope is in its lifecycle.
type State uint8

const (
	// StateActive means the scope is current or an ancestor of current.
	StateActive State = iota
	// StateInterrupted means the scope is alive but detached from current.
	StateInterrupted
	// StateDisposed is terminal.
	StateDisposed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInterrupted:
		return "interrupted"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Scope is one unit of traced work.
//
// Parent and Previous are navigation links only; disposal never follows them.
type Scope struct {
	stack *Stack
	id    uint64

	name   string
	domain string
	tags   []string
	depth  int

	interruptable bool
	lane          int // -1 unless interruptable

	started  bool
	disposed bool

	parent   *Scope
	previous *Scope

	startTime     time.Time
	interruptedAt time.Time
}

// ID returns the scope identifier, unique within its stack.
func (s *Scope) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Name returns the unit-of-work name.
func (s *Scope) Name() string { return s.name }

// Domain returns the scope domain.
func (s *Scope) Domain() string { return s.domain }

// Tags returns a copy of the ordered tag set.
func (s *Scope) Tags() []string { return slices.Clone(s.tags) }

// Depth returns the nesting depth; interruptable roots are always 0.
func (s *Scope) Depth() int { return s.depth }

// IsInterruptable reports whether the scope was opened as an interruptable root.
func (s *Scope) IsInterruptable() bool { return s.interruptable }

// HasStarted reports whether the start line has been emitted.
func (s *Scope) HasStarted() bool { return s.started }

// IsDisposed reports whether Dispose has run.
func (s *Scope) IsDisposed() bool { return s.disposed }

// StartTime returns the time captured when the scope was opened.
func (s *Scope) StartTime() time.Time { return s.startTime }

// InterruptedAt returns the time of the last Interrupt, or zero.
func (s *Scope) InterruptedAt() time.Time { return s.interruptedAt }

// Parent returns the scope that was current when s was opened.
func (s *Scope) Parent() *Scope { return s.parent }

// Previous returns the scope current is restored to when s leaves.
func (s *Scope) Previous() *Scope { return s.previous }

// Lane returns the lane of s or of its nearest interruptable ancestor.
func (s *Scope) Lane() (int, bool) {
	owner := s.laneOwner()
	if owner == nil {
		return -1, false
	}
	return owner.lane, true
}

// IsChildOf reports whether other is a strict ancestor of s.
func (s *Scope) IsChildOf(other *Scope) bool {
	if s == nil || other == nil {
		return false
	}
	for p := s.Parent(); p != nil; p = p.Parent() {
		if p == other {
			return true
		}
	}
	return false
}

// State reports the lifecycle state of s.
func (s *Scope) State() State {
	if s.disposed {
		return StateDisposed
	}
	if s.onCurrentBranch() {
		return StateActive
	}
	return StateInterrupted
}

// Tag appends tags that are not yet present. Scopes opened later inherit them.
func (s *Scope) Tag(tags ...string) {
	for _, t := range tags {
		s.addTag(t)
	}
}

// Write emits a regular message.
func (s *Scope) Write(msg string) { s.log(KindRegular, msg) }

// Writef emits a formatted regular message.
func (s *Scope) Writef(format string, args ...any) {
	if s == nil || !s.stack.verbosity.Allows(KindRegular) {
		return
	}
	s.log(KindRegular, fmt.Sprintf(format, args...))
}

// Warn emits a warning, starting the scope if needed.
func (s *Scope) Warn(msg string) { s.log(KindWarning, msg) }

// Warnf emits a formatted warning.
func (s *Scope) Warnf(format string, args ...any) {
	s.log(KindWarning, fmt.Sprintf(format, args...))
}

// Error emits an error line. A non-nil cause is appended to msg.
func (s *Scope) Error(msg string, cause error) {
	switch {
	case cause == nil:
	case msg == "":
		msg = cause.Error()
	default:
		msg = msg + ": " + cause.Error()
	}
	s.log(KindError, msg)
}

// Debug emits a debug message; only Verbose stacks show it.
func (s *Scope) Debug(msg string) { s.log(KindDebug, msg) }

// Debugf emits a formatted debug message.
func (s *Scope) Debugf(format string, args ...any) {
	if s == nil || !s.stack.verbosity.Allows(KindDebug) {
		return
	}
	s.log(KindDebug, fmt.Sprintf(format, args...))
}

// Interrupt detaches s from the current pointer without ending it.
// s must be interruptable and be current or an ancestor of current.
func (s *Scope) Interrupt() error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: interrupt of nil scope", ErrInvalidOperation)
	case !s.interruptable:
		return fmt.Errorf("%w: scope %q is not interruptable", ErrInvalidOperation, s.name)
	case s.disposed:
		return fmt.Errorf("%w: scope %q is disposed", ErrInvalidOperation, s.name)
	case !s.onCurrentBranch():
		return fmt.Errorf("%w: scope %q is neither current nor an ancestor of current", ErrInvalidOperation, s.name)
	}
	st := s.stack
	st.current = st.firstLive(s.Previous())
	s.interruptedAt = st.now()
	st.fire("interrupt", st.hooks.OnInterrupt, s)
	return nil
}

// Resume makes s current again. The scope that was current becomes its Previous.
func (s *Scope) Resume() error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: resume of nil scope", ErrInvalidOperation)
	case s.disposed:
		return fmt.Errorf("%w: scope %q is disposed", ErrInvalidOperation, s.name)
	case s.onCurrentBranch():
		return fmt.Errorf("%w: scope %q is already active", ErrInvalidOperation, s.name)
	}
	st := s.stack
	s.previous = st.current
	st.current = s
	st.fire("resume", st.hooks.OnResume, s)
	return nil
}

// Dispose ends the scope. It is idempotent and safe to defer.
func (s *Scope) Dispose() {
	if s == nil || s.disposed {
		return
	}
	st := s.stack
	restore := s.onCurrentBranch()
	s.disposed = true
	if s.started {
		end := st.now()
		st.emit("dispose", Line{
			Scope:   s,
			Kind:    KindEnd,
			Message: s.name,
			Time:    end,
			Depth:   max(s.depth-1, 0),
			Elapsed: end.Sub(s.startTime),
		})
	}
	// The end line is rendered while the lane is still held so it can close it.
	if s.interruptable && st.lanes.Holder(s.lane) == s {
		st.lanes.Release(s.lane)
	}
	if restore {
		st.current = st.firstLive(s.Previous())
	}
	st.fire("dispose", st.hooks.OnDispose, s)
}

// signalStart emits the start line once, starting unstarted ancestors first.
func (s *Scope) signalStart() {
	if s.started || s.disposed {
		return
	}
	if p := s.Parent(); p != nil {
		p.signalStart()
	}
	s.started = true
	st := s.stack
	st.emit("start", Line{
		Scope:   s,
		Kind:    KindStart,
		Message: s.name,
		Time:    s.startTime,
		Depth:   max(s.depth-1, 0),
	})
	st.fire("start", st.hooks.OnStart, s)
}

func (s *Scope) log(kind LineKind, msg string) {
	if s == nil || s.stack == nil {
		return
	}
	st := s.stack
	if !st.verbosity.Allows(kind) {
		return
	}
	s.signalStart()
	st.emit(kind.String(), Line{
		Scope:   s,
		Kind:    kind,
		Message: msg,
		Time:    st.now(),
		Depth:   s.depth,
	})
}

func (s *Scope) addTag(t string) {
	t = norm.NFC.String(t)
	if t == "" || slices.Contains(s.tags, t) {
		return
	}
	s.tags = append(s.tags, t)
}

func (s *Scope) laneOwner() *Scope {
	for cur := s; cur != nil; cur = cur.Parent() {
		if cur.interruptable {
			return cur
		}
	}
	return nil
}

func (s *Scope) onCurrentBranch() bool {
	cur := s.stack.current
	return cur != nil && (cur == s || cur.IsChildOf(s))
}
