// Package commandmux sits above SecureSession and below LockApi. It
// demultiplexes inbound frames into request/response waiters keyed by
// command byte and a notification bus keyed by notification type, and
// serializes outbound writes through the active secure session (or
// plaintext, for pre-session operations).
package commandmux
