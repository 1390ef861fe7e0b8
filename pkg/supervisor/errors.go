package supervisor

import "errors"

var (
	// ErrAlreadyConnecting indicates Connect was called while a
	// connection attempt is already in flight; the handshake
	// single-flight guard rejects the reentrant call rather than
	// racing two attempts against the same lock.
	ErrAlreadyConnecting = errors.New("connection attempt already in progress")

	// ErrClosed reports a supervisor that has been cleared. No
	// Supervisor method returns it; API reports ErrNotReady after
	// Clear.
	ErrClosed = errors.New("supervisor closed")

	// ErrHelloTimeout indicates the server Hello did not arrive within
	// the 5-second hello timer.
	ErrHelloTimeout = errors.New("hello timeout")

	// ErrLinkClosed indicates an inbound characteristic channel closed
	// while the supervisor was waiting on it, meaning the radio link
	// dropped.
	ErrLinkClosed = errors.New("radio link closed")

	// ErrNotReady indicates an operation requiring a ready session was
	// attempted while the supervisor was not in Ready/ReadyUnsecure.
	ErrNotReady = errors.New("supervisor not ready")
)
