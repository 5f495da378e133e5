// Package shelve keeps the shelve registrations of alarms. A registration
// expires on its own after a timeout, after which the alarm counts as
// unshelved.
package shelve
