// Package client implements the commands of the alarm-core client binary.
//
// A Session connects to the alarm core, sends ingest and operator requests on
// behalf of the detected actor and prints the answers as JSON.
package client
