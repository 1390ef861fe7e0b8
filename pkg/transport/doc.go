// Package transport implements §4.1 of the lock engine: discovery of
// a lock by serial number over a low-energy radio link, connection
// setup, the retry policy around both, and the three independent
// inbound notification/indication byte streams the rest of the engine
// consumes.
//
// The actual radio stack (permission checks, the BLE central itself)
// is an external collaborator and out of scope for this package; it
// is consumed through the Central interface so the retry policy and
// scan-matching logic can be exercised without real hardware.
package transport
