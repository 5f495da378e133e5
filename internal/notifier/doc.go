// Package notifier keeps the registry of connected observers and pushes alarm
// payloads to them from two periodic tasks: an incremental pass that sends the
// alarms changed since the previous pass, and a full broadcast that resends
// every alarm after recomputing validity.
package notifier
