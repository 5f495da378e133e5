// Package ticket keeps the acknowledgement tickets of alarms.
//
// A ticket is opened when an alarm becomes set while unacknowledged, is marked
// cleared when the alarm clears before anyone acknowledged it, and is closed
// by an operator acknowledgement carrying a message. An alarm is acknowledged
// when it has no ticket waiting for acknowledgement.
package ticket
