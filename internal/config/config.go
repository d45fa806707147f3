// Package config loads lanetrace.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"lanetrace/internal/trace"
)

// FileName is the config file looked up from the working directory upwards.
const FileName = "lanetrace.toml"

// ErrNotFound reports that no config file exists in the directory chain.
var ErrNotFound = errors.New("no " + FileName + " found")

// File mirrors lanetrace.toml.
type File struct {
	Trace    TraceSection    `toml:"trace"`
	Executor ExecutorSection `toml:"executor"`
}

// TraceSection configures rendering and verbosity.
type TraceSection struct {
	Verbosity     string `toml:"verbosity"`
	Format        string `toml:"format"`
	Glyphs        string `toml:"glyphs"`
	ChannelWidth  int    `toml:"channel_width"` // 0 hides the lane channel
	DomainWidth   int    `toml:"domain_width"`
	DefaultDomain string `toml:"default_domain"`
	Color         string `toml:"color"`
	RingSize      int    `toml:"ring_size"`
}

// ExecutorSection configures the scenario executor.
type ExecutorSection struct {
	Fuzz       bool     `toml:"fuzz"`
	Seed       uint64   `toml:"seed"`
	RealTime   bool     `toml:"real_time"`
	StallAfter Duration `toml:"stall_after"`
}

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() File {
	return File{
		Trace: TraceSection{
			Verbosity:     trace.Regular.String(),
			Format:        trace.FormatText.String(),
			Glyphs:        trace.GlyphsUnicode.Name,
			ChannelWidth:  trace.DefaultChannelWidth,
			DefaultDomain: trace.DefaultDomain,
			Color:         ColorAuto.String(),
		},
		Executor: ExecutorSection{Seed: 1},
	}
}

// Find walks up from startDir to locate lanetrace.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads path over the defaults and validates the result.
func Load(path string) (File, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return File{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return File{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover finds and loads the nearest config file. Without one it returns
// the defaults and an error wrapping ErrNotFound.
func Discover(startDir string) (File, string, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Default(), "", err
	}
	if !ok {
		return Default(), "", ErrNotFound
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate checks every field.
func (f File) Validate() error {
	t := f.Trace
	if _, err := trace.ParseVerbosity(t.Verbosity); err != nil {
		return fmt.Errorf("trace.verbosity: %w", err)
	}
	if _, err := trace.ParseFormat(t.Format); err != nil {
		return fmt.Errorf("trace.format: %w", err)
	}
	if _, err := trace.ParseGlyphs(t.Glyphs); err != nil {
		return fmt.Errorf("trace.glyphs: %w", err)
	}
	if _, err := ParseColorMode(t.Color); err != nil {
		return fmt.Errorf("trace.color: %w", err)
	}
	switch {
	case t.ChannelWidth < 0:
		return fmt.Errorf("trace.channel_width: must be >= 0, got %d", t.ChannelWidth)
	case t.DomainWidth < 0:
		return fmt.Errorf("trace.domain_width: must be >= 0, got %d", t.DomainWidth)
	case t.RingSize < 0:
		return fmt.Errorf("trace.ring_size: must be >= 0, got %d", t.RingSize)
	case f.Executor.StallAfter.Duration < 0:
		return fmt.Errorf("executor.stall_after: must not be negative, got %s", f.Executor.StallAfter)
	}
	return nil
}

// TraceConfig converts the trace section. terminal reports whether the
// output is a terminal, which decides color in auto mode.
func (f File) TraceConfig(terminal bool) (trace.Config, error) {
	if err := f.Validate(); err != nil {
		return trace.Config{}, err
	}
	t := f.Trace
	verbosity, _ := trace.ParseVerbosity(t.Verbosity)
	format, _ := trace.ParseFormat(t.Format)
	glyphs, _ := trace.ParseGlyphs(t.Glyphs)
	mode, _ := ParseColorMode(t.Color)

	width := t.ChannelWidth
	if width == 0 {
		width = -1
	}
	return trace.Config{
		Verbosity:     verbosity,
		Format:        format,
		Glyphs:        glyphs,
		ChannelWidth:  width,
		DomainWidth:   t.DomainWidth,
		DefaultDomain: t.DefaultDomain,
		Color:         mode.Enabled(terminal) && format == trace.FormatText,
		RingSize:      t.RingSize,
	}, nil
}
