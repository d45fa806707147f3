package trace

import (
	"fmt"
	"strings"
)

// Verbosity controls which lines a Stack emits.
type Verbosity uint8

const (
	// Regular defers start lines until the first message and hides debug output.
	Regular Verbosity = iota
	// Verbose emits start lines eagerly and shows debug output.
	Verbose
	// WarningsAndErrorsOnly drops regular and debug messages.
	WarningsAndErrorsOnly
)

// String returns the string representation of Verbosity.
func (v Verbosity) String() string {
	switch v {
	case Regular:
		return "regular"
	case Verbose:
		return "verbose"
	case WarningsAndErrorsOnly:
		return "warnings"
	default:
		return "unknown"
	}
}

// ParseVerbosity converts a string to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "regular", "":
		return Regular, nil
	case "verbose":
		return Verbose, nil
	case "warnings", "warnings-and-errors", "warningsanderrorsonly":
		return WarningsAndErrorsOnly, nil
	default:
		return Regular, fmt.Errorf("invalid verbosity: %q (expected: verbose|regular|warnings)", s)
	}
}

// Allows reports whether a message of the given kind is emitted at this verbosity.
// Start and end lines are governed by the scope's started flag, not by verbosity.
func (v Verbosity) Allows(kind LineKind) bool {
	switch kind {
	case KindStart, KindEnd, KindWarning, KindError:
		return true
	case KindRegular:
		return v != WarningsAndErrorsOnly
	case KindDebug:
		return v == Verbose
	}
	return false
}

// eagerStart reports whether scopes start on creation when the caller did not choose.
func (v Verbosity) eagerStart() bool {
	return v == Verbose
}
