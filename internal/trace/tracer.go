package trace

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Config holds stack configuration.
type Config struct {
	Verbosity     Verbosity        // line filtering and start policy
	Format        Format           // output format
	Glyphs        Glyphs           // glyph set; zero value means unicode
	ChannelWidth  int              // lane slots (default 8, negative hides the channel)
	DomainWidth   int              // fixed domain column width (0 = natural)
	DefaultDomain string           // domain of root scopes without one
	Color         bool             // colorize warnings and errors
	Output        io.Writer        // stream output (if nil, stderr)
	Quiet         bool             // do not stream; requires RingSize for any output
	RingSize      int              // >0 keeps the last N lines in a ring
	Clock         func() time.Time // time source (default time.Now)
	Logger        *slog.Logger     // fallback path for emission failures
	Hooks         Hooks            // lifecycle callbacks
}

// New creates a Stack from cfg. The returned ring is nil unless RingSize > 0.
func New(cfg Config) (*Stack, *RingSink) {
	r := NewRenderer()
	r.Format = cfg.Format
	if cfg.Glyphs.Name != "" {
		r.Glyphs = cfg.Glyphs
	}
	switch {
	case cfg.ChannelWidth > 0:
		r.ChannelWidth = cfg.ChannelWidth
	case cfg.ChannelWidth < 0:
		r.ChannelWidth = 0
	}
	r.DomainWidth = cfg.DomainWidth

	var sinks []Sink
	if !cfg.Quiet {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		sinks = append(sinks, NewStreamSink(out, cfg.Color))
	}
	var ring *RingSink
	if cfg.RingSize > 0 {
		ring = NewRingSink(cfg.RingSize)
		sinks = append(sinks, ring)
	}

	var sink Sink
	switch len(sinks) {
	case 0:
		sink = Nop
	case 1:
		sink = sinks[0]
	default:
		sink = NewMultiSink(sinks...)
	}

	st := NewStack(sink,
		WithVerbosity(cfg.Verbosity),
		WithRenderer(r),
		WithDefaultDomain(cfg.DefaultDomain),
		WithClock(cfg.Clock),
		WithFallbackLogger(cfg.Logger),
		WithHooks(cfg.Hooks),
	)
	return st, ring
}

// Flush flushes the stack's sink if it supports flushing.
func (st *Stack) Flush() error {
	if f, ok := st.sink.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
