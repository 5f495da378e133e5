package alarm

import (
	"fmt"
	"strings"
)

// Value is the severity of an alarm. Any value above Cleared means the alarm is set.
type Value int

// Alarm values as produced by the measurement core.
const (
	Cleared Value = iota
	SetLow
	SetMedium
	SetHigh
	SetCritical
)

// valueNames maps alarm values to their wire names.
//
//nolint:gochecknoglobals // Read-only lookup table.
var valueNames = map[Value]string{
	Cleared:     "CLEARED",
	SetLow:      "SET_LOW",
	SetMedium:   "SET_MEDIUM",
	SetHigh:     "SET_HIGH",
	SetCritical: "SET_CRITICAL",
}

// IsSet reports whether the value represents an active alarm.
func (v Value) IsSet() bool {
	return v > Cleared
}

// String returns the wire name of the value.
func (v Value) String() string {
	if name, ok := valueNames[v]; ok {
		return name
	}

	return fmt.Sprintf("Value(%d)", int(v))
}

// ParseValue converts a wire name such as "SET_HIGH" into a Value.
func ParseValue(s string) (Value, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for value, name := range valueNames {
		if name == s {
			return value, nil
		}
	}

	return Cleared, fmt.Errorf("%w: %q", ErrUnknownValue, s)
}

// Mode is the operational mode reported together with a value. It is informational.
type Mode int

// Operational modes.
const (
	ModeStartup Mode = iota
	ModeInitialization
	ModeClosing
	ModeShuttedown
	ModeMaintenance
	ModeOperational
	ModeDegraded
	ModeUnknown
	ModeMalfunctioning
)

//nolint:gochecknoglobals // Read-only lookup table.
var modeNames = map[Mode]string{
	ModeStartup:        "STARTUP",
	ModeInitialization: "INITIALIZATION",
	ModeClosing:        "CLOSING",
	ModeShuttedown:     "SHUTTEDDOWN",
	ModeMaintenance:    "MAINTENANCE",
	ModeOperational:    "OPERATIONAL",
	ModeDegraded:       "DEGRADED",
	ModeUnknown:        "UNKNOWN",
	ModeMalfunctioning: "MALFUNCTIONING",
}

// String returns the wire name of the mode.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}

	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts a wire name such as "OPERATIONAL" into a Mode.
func ParseMode(s string) (Mode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for mode, name := range modeNames {
		if name == s {
			return mode, nil
		}
	}

	return ModeUnknown, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Validity tells whether a value can be trusted.
type Validity int

// Validity levels.
const (
	Unreliable Validity = iota
	Reliable
)

// String returns the wire name of the validity.
func (v Validity) String() string {
	if v == Reliable {
		return "RELIABLE"
	}

	return "UNRELIABLE"
}

// ParseValidity converts "RELIABLE" or "UNRELIABLE" into a Validity.
func ParseValidity(s string) (Validity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RELIABLE":
		return Reliable, nil
	case "UNRELIABLE":
		return Unreliable, nil
	default:
		return Unreliable, fmt.Errorf("%w: %q", ErrUnknownValidity, s)
	}
}
