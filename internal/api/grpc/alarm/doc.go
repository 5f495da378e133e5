// Package alarm implements the gRPC transport of the alarm core.
//
// It converts between protobuf well-known messages and domain types and
// forwards every call to a Service. Watch streams are backed by observers
// registered with the notifier.
package alarm
