// Package collection implements the authoritative in-memory alarm store.
//
// A Collection owns the alarm table, the IASValue table, the reverse
// dependency index, the per-view counters of active unacknowledged alarms and
// the log of ids changed since the last notification pass. Every mutation
// holds a single lock for its whole duration, so readers always observe the
// four structures consistent with each other.
package collection
