package trace

import "time"

// LineKind identifies what a rendered line represents.
type LineKind uint8

const (
	// KindStart marks the beginning of a scope.
	KindStart LineKind = iota + 1
	// KindEnd marks the end of a scope.
	KindEnd
	KindRegular
	KindWarning
	KindError
	KindDebug
)

// String returns the string representation of LineKind.
func (k LineKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindRegular:
		return "regular"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	case KindDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// Severity returns the sink channel a line of this kind is written to.
func (k LineKind) Severity() Severity {
	switch k {
	case KindWarning:
		return SevWarning
	case KindError:
		return SevError
	default:
		return SevLine
	}
}

// Line is one unit of output before rendering.
type Line struct {
	Scope   *Scope        // emitting scope
	Kind    LineKind      // line kind
	Message string        // message text
	Time    time.Time     // timestamp shown on the line
	Depth   int           // indentation depth
	Elapsed time.Duration // scope duration, end lines only
}
