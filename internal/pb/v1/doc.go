// Package pb declares the alarmcore.v1.AlarmCore gRPC service.
//
// Requests and responses are protobuf well-known types (Struct, ListValue,
// wrappers and Empty), so the service needs no generated message code. The
// field names carried inside Struct messages are listed next to each method.
package pb
