// Package logging provides structured logging for the echo control core.
//
// This package wraps Go's standard log/slog package so every component
// logs the same way. Entries carry service and version fields; components
// add their own with Component.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	sup.SetLogger(logger.Component("supervisor"))
//	logger.Error("failed to connect", "error", err)
//
// Never log secrets, tokens, or passwords.
package logging
