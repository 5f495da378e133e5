package alarm

import "maps"

// IASValue is a non-alarm telemetry value. It carries no dependency,
// acknowledgement or shelving semantics.
type IASValue struct {
	// CoreID uniquely identifies the value.
	CoreID string
	// RunningID is the full running id the core reported the value with.
	RunningID string
	// Value is the opaque textual value.
	Value string
	// Mode is the operational mode of the producer.
	Mode Mode
	// Validity tells whether the value is reliable.
	Validity Validity
	// CoreTimestamp is the producer timestamp in epoch milliseconds.
	CoreTimestamp int64
	// Timestamps are passed through from the core untouched.
	Timestamps map[string]string
}

// Clone returns a deep copy of the value.
func (v *IASValue) Clone() *IASValue {
	if v == nil {
		return nil
	}

	cloned := *v
	cloned.Timestamps = maps.Clone(v.Timestamps)

	return &cloned
}

// Update overwrites v with a newer record. Records that are not strictly newer are ignored.
func (v *IASValue) Update(incoming *IASValue) Merge {
	if incoming.CoreTimestamp <= v.CoreTimestamp {
		return MergeIgnored
	}

	result := MergeEqual
	if incoming.Value != v.Value || incoming.Mode != v.Mode || incoming.Validity != v.Validity {
		result = MergeDifferent
	}

	v.RunningID = incoming.RunningID
	v.Value = incoming.Value
	v.Mode = incoming.Mode
	v.Validity = incoming.Validity
	v.CoreTimestamp = incoming.CoreTimestamp
	v.Timestamps = maps.Clone(incoming.Timestamps)

	return result
}

// ToMap renders the value with the field names the dashboards consume.
func (v *IASValue) ToMap() map[string]any {
	return map[string]any{
		"core_id":        v.CoreID,
		"running_id":     v.RunningID,
		"value":          v.Value,
		"mode":           int(v.Mode),
		"validity":       int(v.Validity),
		"core_timestamp": v.CoreTimestamp,
		"timestamps":     toAnyMap(v.Timestamps),
	}
}
