// Package common holds helpers shared by the alarm core client commands.
//
// It provides a gRPC client wrapper with call timeouts over the AlarmCore
// service and a helper to detect the current system actor (hostname/username)
// recorded with acknowledgements and shelves.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
