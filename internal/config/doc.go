// Package config defines the settings shared by the alarm core binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Values read from the file can be overridden by ALARMCORE_* environment
// variables, for example ALARMCORE_REGISTRY_REDIS_ADDR.
package config
