package alarm

import (
	"errors"
	"maps"
	"slices"
	"time"
)

var (
	// ErrUnknownValue is returned when an alarm value name cannot be parsed.
	ErrUnknownValue = errors.New("unknown alarm value")
	// ErrUnknownMode is returned when an operational mode name cannot be parsed.
	ErrUnknownMode = errors.New("unknown operational mode")
	// ErrUnknownValidity is returned when a validity name cannot be parsed.
	ErrUnknownValidity = errors.New("unknown validity")
)

// Merge classifies the outcome of applying an incoming record to a stored one.
type Merge int

const (
	// MergeIgnored means the incoming record was not newer and nothing changed.
	MergeIgnored Merge = iota
	// MergeEqual means the record was accepted but no compared field changed.
	MergeEqual
	// MergeDifferent means the record was accepted and at least one compared field changed.
	MergeDifferent
)

// Transition describes how the set/cleared state changed during a merge.
type Transition int

const (
	// NoTransition means the alarm stayed set or stayed cleared.
	NoTransition Transition = iota
	// ClearToSet means the alarm became active.
	ClearToSet
	// SetToClear means the alarm became inactive.
	SetToClear
)

// Change is the result of Alarm.Update.
type Change struct {
	// Result tells whether the update was ignored, equal or different.
	Result Merge
	// Transition reports a clear/set flip caused by the update.
	Transition Transition
	// DependenciesChanged is true when the dependency list was replaced.
	DependenciesChanged bool
	// PreviousDependencies holds the dependency list before the update.
	PreviousDependencies []string
}

// Alarm is a monitor point whose value can be set or cleared, together with the
// operator state (acknowledgement and shelving) owned by the alarm store.
type Alarm struct {
	// CoreID uniquely identifies the alarm.
	CoreID string
	// RunningID is the full running id the core reported the alarm with.
	RunningID string
	// Value is the current severity.
	Value Value
	// Mode is the operational mode of the producer.
	Mode Mode
	// Validity tells whether the value is reliable.
	Validity Validity
	// CoreTimestamp is the producer timestamp in epoch milliseconds and acts as the version.
	CoreTimestamp int64
	// StateChangeTimestamp is when mode, validity or value last changed (0 means never).
	StateChangeTimestamp int64
	// ValueChangeTimestamp is when the value last changed.
	ValueChangeTimestamp int64
	// ValueChangeTransition holds the previous and the new value of the last value change.
	ValueChangeTransition [2]Value
	// Dependencies lists the core ids of the alarms this alarm depends on.
	Dependencies []string
	// Properties are passed through from the core untouched.
	Properties map[string]string
	// Timestamps are passed through from the core untouched.
	Timestamps map[string]string
	// Description is the short description from the configuration database.
	Description string
	// URL points to the documentation of the alarm.
	URL string
	// Sound names the sound the dashboards play when the alarm is set.
	Sound string
	// CanShelve tells whether operators may shelve the alarm.
	CanShelve bool
	// Ack is true when the alarm has been acknowledged.
	Ack bool
	// Shelved is true while the alarm is shelved.
	Shelved bool
	// Views are the names of the views whose counters the alarm contributes to.
	Views []string
	// Stored is true once the alarm is part of the authoritative table.
	Stored bool
}

// IsSet reports whether the alarm is active.
func (a *Alarm) IsSet() bool {
	return a.Value.IsSet()
}

// Clone returns a deep copy of the alarm.
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}

	cloned := *a
	cloned.Dependencies = slices.Clone(a.Dependencies)
	cloned.Properties = maps.Clone(a.Properties)
	cloned.Timestamps = maps.Clone(a.Timestamps)
	cloned.Views = slices.Clone(a.Views)

	return &cloned
}

// Update merges a newer record for the same alarm into a.
//
// Records whose CoreTimestamp is not strictly greater than the stored one are
// ignored. Operator-owned and configuration-owned fields (Ack, Shelved,
// Description, URL, Sound, CanShelve, Views, Stored and the change timestamps)
// are never taken from the incoming record.
func (a *Alarm) Update(incoming *Alarm) Change {
	if incoming.CoreTimestamp <= a.CoreTimestamp {
		return Change{Result: MergeIgnored}
	}

	change := Change{
		Result:     MergeEqual,
		Transition: transitionOf(a.Value, incoming.Value),
	}

	if incoming.Mode != a.Mode || (a.StateChangeTimestamp == 0 && incoming.Validity == Reliable) {
		a.StateChangeTimestamp = incoming.CoreTimestamp
	}

	if incoming.Value != a.Value {
		a.StateChangeTimestamp = incoming.CoreTimestamp
		a.ValueChangeTimestamp = incoming.CoreTimestamp
		a.ValueChangeTransition = [2]Value{a.Value, incoming.Value}
	}

	if incoming.Value != a.Value ||
		incoming.Mode != a.Mode ||
		incoming.Validity != a.Validity ||
		incoming.RunningID != a.RunningID ||
		!slices.Equal(incoming.Dependencies, a.Dependencies) ||
		!maps.Equal(incoming.Properties, a.Properties) {
		change.Result = MergeDifferent
	}

	if !slices.Equal(incoming.Dependencies, a.Dependencies) {
		change.DependenciesChanged = true
		change.PreviousDependencies = a.Dependencies
	}

	a.Value = incoming.Value
	a.Mode = incoming.Mode
	a.Validity = incoming.Validity
	a.RunningID = incoming.RunningID
	a.CoreTimestamp = incoming.CoreTimestamp
	a.Dependencies = slices.Clone(incoming.Dependencies)
	a.Properties = maps.Clone(incoming.Properties)
	a.Timestamps = maps.Clone(incoming.Timestamps)

	return change
}

// RecomputeValidity downgrades a reliable alarm to unreliable when its last
// update is older than threshold. It never upgrades validity and reports
// whether the alarm changed.
func (a *Alarm) RecomputeValidity(now time.Time, threshold time.Duration) bool {
	if a.Validity == Unreliable {
		return false
	}

	if now.UnixMilli()-a.CoreTimestamp <= threshold.Milliseconds() {
		return false
	}

	a.Validity = Unreliable

	return true
}

// ToMap renders the alarm with the field names the dashboards consume.
func (a *Alarm) ToMap() map[string]any {
	return map[string]any{
		"core_id":                 a.CoreID,
		"running_id":              a.RunningID,
		"value":                   int(a.Value),
		"mode":                    int(a.Mode),
		"validity":                int(a.Validity),
		"core_timestamp":          a.CoreTimestamp,
		"state_change_timestamp":  a.StateChangeTimestamp,
		"value_change_timestamp":  a.ValueChangeTimestamp,
		"value_change_transition": []any{int(a.ValueChangeTransition[0]), int(a.ValueChangeTransition[1])},
		"dependencies":            toAnySlice(a.Dependencies),
		"properties":              toAnyMap(a.Properties),
		"timestamps":              toAnyMap(a.Timestamps),
		"description":             a.Description,
		"url":                     a.URL,
		"sound":                   a.Sound,
		"can_shelve":              a.CanShelve,
		"ack":                     a.Ack,
		"shelved":                 a.Shelved,
		"views":                   toAnySlice(a.Views),
	}
}

func transitionOf(previous, current Value) Transition {
	switch {
	case !previous.IsSet() && current.IsSet():
		return ClearToSet
	case previous.IsSet() && !current.IsSet():
		return SetToClear
	default:
		return NoTransition
	}
}

func toAnySlice(values []string) []any {
	result := make([]any, 0, len(values))
	for _, v := range values {
		result = append(result, v)
	}

	return result
}

func toAnyMap(values map[string]string) map[string]any {
	result := make(map[string]any, len(values))
	for k, v := range values {
		result[k] = v
	}

	return result
}
