package config

import (
	"fmt"
	"strings"
)

// ColorMode selects when output is colorized.
type ColorMode uint8

const (
	ColorAuto ColorMode = iota
	ColorOn
	ColorOff
)

// String returns the string representation of ColorMode.
func (m ColorMode) String() string {
	switch m {
	case ColorAuto:
		return "auto"
	case ColorOn:
		return "on"
	case ColorOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseColorMode converts auto|on|off to a ColorMode.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return ColorAuto, nil
	case "on", "always", "true":
		return ColorOn, nil
	case "off", "never", "false":
		return ColorOff, nil
	default:
		return ColorAuto, fmt.Errorf("invalid color mode: %q (expected: auto|on|off)", s)
	}
}

// Enabled resolves the mode against terminal detection.
func (m ColorMode) Enabled(terminal bool) bool {
	switch m {
	case ColorOn:
		return true
	case ColorOff:
		return false
	default:
		return terminal
	}
}
