// Package supervisor owns the lifetime of a lock session: it mediates
// between Transport, SecureSession, and CommandMux, drives the
// top-level state machine described in the engine's connection model,
// arms the hello timer, and runs the signed-time refresh flow.
package supervisor
