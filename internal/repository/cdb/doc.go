// Package cdb reads the configuration database: the monitoring points known
// before any event arrives, the timing parameters of the core and the views
// alarms are grouped in.
package cdb
