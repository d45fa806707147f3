package trace

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// DefaultChannelWidth is the number of lane slots drawn per line.
const DefaultChannelWidth = 8

// DefaultTimeLayout renders HH:mm:ss.fff.
const DefaultTimeLayout = "15:04:05.000"

// Renderer formats lines. Column order is fixed:
//
//	[<domain>] <time> <lane-channel> <indent><prefix><[tags] ><message>
type Renderer struct {
	Format       Format
	Glyphs       Glyphs
	ChannelWidth int    // lane slots; 0 hides the channel
	DomainWidth  int    // pad/truncate the domain to this display width; 0 leaves it as is
	TimeLayout   string // time.Format layout
	Indent       string // one indentation step
}

// NewRenderer returns a text renderer with the default layout.
func NewRenderer() *Renderer {
	return &Renderer{
		Format:       FormatText,
		Glyphs:       GlyphsUnicode,
		ChannelWidth: DefaultChannelWidth,
		TimeLayout:   DefaultTimeLayout,
		Indent:       "  ",
	}
}

// Render formats ln against the live lanes.
func (r *Renderer) Render(ln Line, lanes *LaneAllocator) string {
	domain := r.domain(ln.Scope.Domain())
	timestamp := ln.Time.Format(r.layout())
	channel := r.channel(ln, lanes)

	if r.Format == FormatNDJSON {
		return formatNDJSON(ln, ln.Scope.Domain(), timestamp, channel)
	}

	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(domain)
	sb.WriteString("] ")
	sb.WriteString(timestamp)
	sb.WriteByte(' ')
	if channel != "" {
		sb.WriteString(channel)
		sb.WriteByte(' ')
	}
	for range max(ln.Depth, 0) {
		sb.WriteString(r.Indent)
	}
	sb.WriteString(r.Glyphs.prefix(ln))
	if tags := ln.Scope.tags; len(tags) > 0 {
		sb.WriteByte('[')
		sb.WriteString(strings.Join(tags, ","))
		sb.WriteString("] ")
	}
	sb.WriteString(ln.Message)
	if ln.Kind == KindEnd {
		sb.WriteString(" (")
		sb.WriteString(formatElapsed(ln.Elapsed))
		sb.WriteByte(')')
	}
	return sb.String()
}

// channel builds the fixed-width lane channel for ln.
func (r *Renderer) channel(ln Line, lanes *LaneAllocator) string {
	width := r.ChannelWidth
	if width <= 0 {
		return ""
	}
	slots := make([]rune, width)
	for i := range slots {
		slots[i] = ' '
	}
	overflow := false
	for _, e := range lanes.Entries() {
		if !e.Scope.started {
			continue
		}
		if e.Index >= width {
			overflow = true
			continue
		}
		slots[e.Index] = r.Glyphs.Continue
	}

	if owner := ln.Scope.laneOwner(); owner != nil && lanes.Holder(owner.lane) == owner {
		if owner.lane < width {
			glyph := r.Glyphs.Branch
			if ln.Scope == owner {
				switch ln.Kind {
				case KindStart:
					glyph = r.Glyphs.Open
				case KindEnd:
					glyph = r.Glyphs.Close
				}
			}
			slots[owner.lane] = glyph
		} else {
			overflow = true
		}
	}
	if overflow {
		slots[width-1] = r.Glyphs.Overflow
	}
	return string(slots)
}

func (r *Renderer) domain(d string) string {
	if r.DomainWidth <= 0 {
		return d
	}
	if runewidth.StringWidth(d) > r.DomainWidth {
		d = runewidth.Truncate(d, r.DomainWidth, "")
	}
	return runewidth.FillRight(d, r.DomainWidth)
}

func (r *Renderer) layout() string {
	if r.TimeLayout == "" {
		return DefaultTimeLayout
	}
	return r.TimeLayout
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Microsecond).String()
}
