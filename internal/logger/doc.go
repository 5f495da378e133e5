// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with console or JSON encoding,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// The alarm store, the notifier and the transport accept a context and
// extract the logger from it, enabling scoped, structured logging.
package logger
