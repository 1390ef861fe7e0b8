// Package wireframe implements the lock link's frame header: every
// inbound frame's first byte packs a 4-bit message kind (low nibble)
// and an opaque peer-echoed counter (high nibble). Strip turns that
// into a clean (kind, rest) pair for upper layers; the counter is
// recorded only for logging, never interpreted.
//
// The framer does not own outbound counter assignment — per §4.2,
// the lower transport writes messages as given, and pkg/supervisor
// (for handshake frames from pkg/securesession) and pkg/commandmux
// prepend the correct kind byte themselves via Build.
package wireframe
