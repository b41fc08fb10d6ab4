// Package logging provides structured logging for hellod and the hello CLI.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for services, text for interactive use
//   - Default fields (service, version) on all records
//   - Level-based filtering (debug, info, warn, error)
//
// Configured via the logging section:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, logging.DefaultService, "1.0.0")
//	logger.Info("device attached", "dev", "/dev/hello")
//
// *Logger satisfies the small Logger interfaces declared by the driver,
// server, hal, bridge and audit packages.
package logging
