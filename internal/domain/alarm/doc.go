// Package alarm contains the core domain records of the alarm-state engine.
//
// It defines Alarm (a monitor point with acknowledgement and shelving state)
// and IASValue (plain telemetry), their timestamp-ordered merge rules, the
// parsing of inbound core messages into those records and the extraction of
// core ids from full running ids.
package alarm
