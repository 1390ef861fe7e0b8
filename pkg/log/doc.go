// Package log provides structured protocol logging for the lock
// engine.
//
// This is separate from operational logging: it captures a
// machine-readable trace of every frame, decoded message, supervisor
// state transition, and alert, at whichever layer produced it
// (transport, wireframe/securesession, or the supervisor/commandmux
// service layer). Applications configure logging by setting a Logger
// implementation (and optionally a ConnectionID) on the
// supervisor.Config passed to supervisor.New:
//
//	// Console output during development:
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//	cfg.ConnectionID = connID
//
//	// Durable binary trace for field diagnostics:
//	fileLogger, _ := log.NewFileLogger("/var/log/lockengine/session.lelog")
//	cfg.Logger = fileLogger
//
//	// Both at once:
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// Log files use CBOR encoding with the .lelog extension; Reader
// streams them back with optional filtering.
package log
