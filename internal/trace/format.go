package trace

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format represents the output format for trace lines.
type Format uint8

const (
	FormatText   Format = iota // human-readable text
	FormatNDJSON               // newline-delimited JSON
)

// String returns the string representation of Format.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatNDJSON:
		return "ndjson"
	default:
		return "unknown"
	}
}

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	default:
		return FormatText, fmt.Errorf("invalid trace format: %q (expected: text|ndjson)", s)
	}
}

// Glyphs is the character set used for lane channels and line prefixes.
type Glyphs struct {
	Name string

	Continue rune // live lane passing by
	Branch   rune // lane of the rendering scope
	Open     rune // start line of an interruptable root
	Close    rune // end line of an interruptable root
	Overflow rune // lanes beyond the channel width

	Enter              string
	Leave              string
	EnterInterruptable string
	LeaveInterruptable string
	Warning            string
	Error              string
	Debug              string
}

// GlyphsUnicode draws with box-drawing characters.
var GlyphsUnicode = Glyphs{
	Name:               "unicode",
	Continue:           '│',
	Branch:             '├',
	Open:               '┌',
	Close:              '└',
	Overflow:           '…',
	Enter:              "\u2192 ", // →
	Leave:              "\u2190 ", // ←
	EnterInterruptable: "\u21d2 ", // ⇒
	LeaveInterruptable: "\u21d0 ", // ⇐
	Warning:            "\u26a0 ", // ⚠
	Error:              "\u2716 ", // ✖
	Debug:              "\u00b7 ", // ·
}

// GlyphsASCII draws with plain ASCII.
var GlyphsASCII = Glyphs{
	Name:               "ascii",
	Continue:           '|',
	Branch:             '+',
	Open:               '/',
	Close:              '\\',
	Overflow:           '>',
	Enter:              "> ",
	Leave:              "< ",
	EnterInterruptable: ">> ",
	LeaveInterruptable: "<< ",
	Warning:            "! ",
	Error:              "x ",
	Debug:              ". ",
}

// ParseGlyphs converts a string to a glyph set.
func ParseGlyphs(s string) (Glyphs, error) {
	switch strings.ToLower(s) {
	case "unicode", "":
		return GlyphsUnicode, nil
	case "ascii":
		return GlyphsASCII, nil
	default:
		return GlyphsUnicode, fmt.Errorf("invalid glyph set: %q (expected: unicode|ascii)", s)
	}
}

// prefix returns the kind-specific prefix for a line.
func (g Glyphs) prefix(ln Line) string {
	interruptable := ln.Scope != nil && ln.Scope.interruptable
	switch ln.Kind {
	case KindStart:
		if interruptable {
			return g.EnterInterruptable
		}
		return g.Enter
	case KindEnd:
		if interruptable {
			return g.LeaveInterruptable
		}
		return g.Leave
	case KindWarning:
		return g.Warning
	case KindError:
		return g.Error
	case KindDebug:
		return g.Debug
	}
	return ""
}

type jsonLine struct {
	Domain  string   `json:"domain"`
	Time    string   `json:"time"`
	Lanes   string   `json:"lanes,omitempty"`
	Lane    *int     `json:"lane,omitempty"`
	Depth   int      `json:"depth"`
	Kind    string   `json:"kind"`
	Scope   string   `json:"scope"`
	ScopeID uint64   `json:"scope_id"`
	Tags    []string `json:"tags,omitempty"`
	Message string   `json:"message"`
	Elapsed string   `json:"elapsed,omitempty"`
}

// formatNDJSON formats a line as a single JSON object.
func formatNDJSON(ln Line, domain, timestamp, channel string) string {
	j := jsonLine{
		Domain:  domain,
		Time:    timestamp,
		Lanes:   channel,
		Depth:   ln.Depth,
		Kind:    ln.Kind.String(),
		Scope:   ln.Scope.Name(),
		ScopeID: ln.Scope.ID(),
		Tags:    ln.Scope.tags,
		Message: ln.Message,
	}
	if lane, ok := ln.Scope.Lane(); ok {
		j.Lane = &lane
	}
	if ln.Kind == KindEnd {
		j.Elapsed = formatElapsed(ln.Elapsed)
	}
	data, err := json.Marshal(j)
	if err != nil {
		panic(err)
	}
	return string(data)
}
