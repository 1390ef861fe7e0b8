package securesession

import "errors"

var (
	// ErrUnexpectedFrame indicates a frame kind arrived in a state that
	// doesn't accept it (§4.4).
	ErrUnexpectedFrame = errors.New("unexpected frame in secure session handshake")

	// ErrVerificationFailed indicates the server's SERVER_VERIFY record
	// did not validate against the device public key from the access
	// certificate. The session tears down on this error.
	ErrVerificationFailed = errors.New("server verification record invalid")

	// ErrSessionClosed indicates an operation was attempted on a
	// session that already transitioned to closed.
	ErrSessionClosed = errors.New("secure session closed")

	// ErrNotReady indicates encrypt/decrypt was attempted before the
	// handshake reached SESSION_INITIALIZED.
	ErrNotReady = errors.New("secure session not ready")

	// ErrAuthTagMismatch indicates an inbound DATA_ENCRYPTED frame
	// failed AEAD authentication.
	ErrAuthTagMismatch = errors.New("auth tag mismatch")

	// ErrMalformedFrame indicates a frame body was too short to carry
	// the fields its kind requires.
	ErrMalformedFrame = errors.New("malformed secure session frame")
)
