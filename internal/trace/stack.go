package trace

import (
	"log/slog"
	"slices"
	"time"

	"golang.org/x/text/unicode/norm"

	"lanetrace/internal/logging"
)

// DefaultDomain is the domain of root scopes opened without one.
const DefaultDomain = "main"

// Stack holds the current scope and the lane registry of one logical thread
// of control. It is not safe for concurrent use.
type Stack struct {
	sink          Sink
	renderer      *Renderer
	verbosity     Verbosity
	defaultDomain string
	clock         func() time.Time
	fallback      *slog.Logger
	hooks         Hooks

	current *Scope
	lanes   *LaneAllocator
	nextID  uint64
}

// Option configures a Stack.
type Option func(*Stack)

// WithVerbosity sets the verbosity. The default is Regular.
func WithVerbosity(v Verbosity) Option {
	return func(st *Stack) { st.verbosity = v }
}

// WithRenderer replaces the default line renderer.
func WithRenderer(r *Renderer) Option {
	return func(st *Stack) {
		if r != nil {
			st.renderer = r
		}
	}
}

// WithDefaultDomain sets the domain of root scopes opened without one.
func WithDefaultDomain(domain string) Option {
	return func(st *Stack) {
		if domain != "" {
			st.defaultDomain = norm.NFC.String(domain)
		}
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(st *Stack) {
		if clock != nil {
			st.clock = clock
		}
	}
}

// WithFallbackLogger sets the logger that receives rendering and sink failures.
func WithFallbackLogger(l *slog.Logger) Option {
	return func(st *Stack) {
		if l != nil {
			st.fallback = l
		}
	}
}

// WithHooks installs lifecycle callbacks.
func WithHooks(h Hooks) Option {
	return func(st *Stack) { st.hooks = h }
}

// NewStack creates a Stack writing to sink. A nil sink discards output.
func NewStack(sink Sink, opts ...Option) *Stack {
	if sink == nil {
		sink = Nop
	}
	st := &Stack{
		sink:          sink,
		renderer:      NewRenderer(),
		verbosity:     Regular,
		defaultDomain: DefaultDomain,
		clock:         time.Now,
		fallback:      logging.NewNop(),
		lanes:         NewLaneAllocator(),
	}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// OpenOption configures a scope at creation.
type OpenOption func(*openOptions)

type openOptions struct {
	domain        string
	tags          []string
	interruptable bool
	deferSet      bool
	deferStart    bool
}

// InDomain sets the scope domain instead of inheriting the creator's.
func InDomain(domain string) OpenOption {
	return func(o *openOptions) { o.domain = domain }
}

// WithTags adds tags after the inherited ones.
func WithTags(tags ...string) OpenOption {
	return func(o *openOptions) { o.tags = append(o.tags, tags...) }
}

// Interruptable opens the scope as an interruptable root with its own lane.
func Interruptable() OpenOption {
	return func(o *openOptions) { o.interruptable = true }
}

// Deferred postpones the start line until the scope first writes.
func Deferred() OpenOption {
	return func(o *openOptions) { o.deferSet, o.deferStart = true, true }
}

// Eager emits the start line on creation.
func Eager() OpenOption {
	return func(o *openOptions) { o.deferSet, o.deferStart = true, false }
}

// Open creates a scope nested under the current one and makes it current.
func (st *Stack) Open(name string, opts ...OpenOption) *Scope {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	st.nextID++
	creator := st.current
	s := &Scope{
		stack:     st,
		id:        st.nextID,
		name:      name,
		domain:    norm.NFC.String(o.domain),
		lane:      -1,
		startTime: st.now(),
	}
	if creator != nil {
		s.parent = creator
		s.previous = creator
		s.depth = creator.depth + 1
		s.tags = slices.Clone(creator.tags)
		if s.domain == "" {
			s.domain = creator.domain
		}
	}
	if s.domain == "" {
		s.domain = st.defaultDomain
	}
	s.Tag(o.tags...)
	if o.interruptable {
		s.interruptable = true
		s.depth = 0
		s.lane = st.lanes.Allocate(s)
	}

	st.current = s
	st.fire("open", st.hooks.OnOpen, s)
	if !st.deferStart(o) {
		s.signalStart()
	}
	return s
}

// Current returns the active scope, or nil.
func (st *Stack) Current() *Scope { return st.current }

// Verbosity returns the configured verbosity.
func (st *Stack) Verbosity() Verbosity { return st.verbosity }

// Lanes returns the live interruptable roots in lane order.
func (st *Stack) Lanes() []LaneEntry { return st.lanes.Entries() }

// Sink returns the output sink.
func (st *Stack) Sink() Sink { return st.sink }

func (st *Stack) deferStart(o openOptions) bool {
	if st.verbosity == WarningsAndErrorsOnly {
		return true
	}
	if o.deferSet {
		return o.deferStart
	}
	return !st.verbosity.eagerStart()
}

// firstLive walks Previous links from s, skipping disposed scopes.
func (st *Stack) firstLive(s *Scope) *Scope {
	// Previous chains are acyclic; the bound only guards against misuse.
	for steps := uint64(0); s != nil && s.disposed; steps++ {
		if steps > st.nextID {
			return nil
		}
		s = s.Previous()
	}
	return s
}

func (st *Stack) now() time.Time { return st.clock() }

// emit renders ln and writes it to the sink. Failures never reach the caller.
func (st *Stack) emit(op string, ln Line) {
	defer func() {
		if r := recover(); r != nil {
			st.fallback.Error("trace emission failed", "op", op, "scope", ln.Scope.Name(), "panic", r)
		}
	}()
	text := st.renderer.Render(ln, st.lanes)
	switch ln.Kind.Severity() {
	case SevWarning:
		st.sink.WriteWarning(text)
	case SevError:
		st.sink.WriteError(text)
	default:
		st.sink.WriteLine(text)
	}
}
