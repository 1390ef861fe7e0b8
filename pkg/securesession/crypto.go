package securesession

import "github.com/lockengine/lockengine-go/pkg/protocol"

// Crypto is the capability boundary between the handshake state
// machine and the actual key-exchange algorithm (§4.4). The algorithm
// itself is opaque to this engine; Crypto exposes only the operations
// Session needs to drive the observable frame exchange.
//
// Methods are called in the fixed order the handshake defines; a
// Crypto implementation may assume ClientHello is called first,
// HandleServerHello second, and so on, exactly once each per session.
type Crypto interface {
	// ClientHello produces the key-exchange blob carried by the
	// client's HELLO frame.
	ClientHello() ([]byte, error)

	// HandleServerHello consumes the server's HELLO payload and
	// derives the shared secret.
	HandleServerHello(serverHello []byte) error

	// VerifyServerRecord validates the server's SERVER_VERIFY record
	// against the device public key bound to this Crypto instance.
	// Returns ErrVerificationFailed on mismatch.
	VerifyServerRecord(record []byte) error

	// ClientVerifyPayload produces the full (unchunked) client
	// verification payload; Session splits it into CLIENT_VERIFY /
	// CLIENT_VERIFY_END chunks.
	ClientVerifyPayload() ([]byte, error)

	// HandleSessionInitialized consumes the SESSION_INITIALIZED
	// payload's post-handshake parameters.
	HandleSessionInitialized(params []byte) error

	// Encrypt produces the DATA_ENCRYPTED frame body for command and
	// payload.
	Encrypt(command protocol.Command, payload []byte) ([]byte, error)

	// Decrypt consumes a DATA_ENCRYPTED frame body, returning the
	// command and plaintext payload. Returns ErrAuthTagMismatch on
	// authentication failure.
	Decrypt(body []byte) (protocol.Command, []byte, error)

	// Close zeroes any retained key material. Safe to call more than
	// once.
	Close()
}
