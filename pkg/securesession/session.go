package securesession

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// MaxClientVerifyChunkSize bounds a single CLIENT_VERIFY/
// CLIENT_VERIFY_END frame payload, sized under typical BLE ATT MTU
// (§4.4: "Client sends CLIENT_VERIFY in N chunks").
const MaxClientVerifyChunkSize = 180

// State is a handshake phase (§4.4).
type State uint8

const (
	StateNew State = iota
	StateHelloSent
	StateServerHelloReceived
	StateClientVerifySent
	StateReady
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateHelloSent:
		return "HELLO_SENT"
	case StateServerHelloReceived:
		return "SERVER_HELLO_RECEIVED"
	case StateClientVerifySent:
		return "CLIENT_VERIFY_SENT"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// OutboundFrame is a frame Session wants written to the lock
// notification characteristic.
type OutboundFrame struct {
	Kind    protocol.FrameKind
	Payload []byte
}

// Session drives the client side of the handshake described in §4.4
// and, once ready, the post-handshake encrypt/decrypt oracle. It is
// safe for concurrent use; callers typically serialize access through
// CommandMux regardless.
type Session struct {
	mu     sync.Mutex
	crypto Crypto
	state  State
	now    func() time.Time
}

// New creates a session over the given Crypto implementation. now
// defaults to time.Now if nil; tests may override it to get a
// deterministic SERVER_VERIFY timestamp.
func New(crypto Crypto, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{crypto: crypto, state: StateNew, now: now}
}

// State returns the session's current handshake phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start produces the client HELLO frame and transitions to
// StateHelloSent.
func (s *Session) Start() (OutboundFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNew {
		return OutboundFrame{}, ErrUnexpectedFrame
	}

	blob, err := s.crypto.ClientHello()
	if err != nil {
		return OutboundFrame{}, err
	}
	s.state = StateHelloSent
	return OutboundFrame{Kind: protocol.FrameHello, Payload: blob}, nil
}

// HandleHello consumes the server's HELLO frame and produces the
// client's SERVER_VERIFY frame carrying the current wall-clock time
// (§4.4 step 3 — the frame kind is SERVER_VERIFY in both directions).
func (s *Session) HandleHello(payload []byte) (OutboundFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateHelloSent {
		return OutboundFrame{}, ErrUnexpectedFrame
	}

	if err := s.crypto.HandleServerHello(payload); err != nil {
		s.state = StateClosed
		return OutboundFrame{}, err
	}

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(s.now().UnixMilli()))

	s.state = StateServerHelloReceived
	return OutboundFrame{Kind: protocol.FrameServerVerify, Payload: ts}, nil
}

// HandleServerVerify consumes the server's signed SERVER_VERIFY
// record, verifies it against the device public key, and produces the
// chunked CLIENT_VERIFY/CLIENT_VERIFY_END frames (§4.4 steps 4-5).
func (s *Session) HandleServerVerify(record []byte) ([]OutboundFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateServerHelloReceived {
		return nil, ErrUnexpectedFrame
	}

	if err := s.crypto.VerifyServerRecord(record); err != nil {
		s.state = StateClosed
		return nil, ErrVerificationFailed
	}

	payload, err := s.crypto.ClientVerifyPayload()
	if err != nil {
		s.state = StateClosed
		return nil, err
	}

	frames := chunkClientVerify(payload)
	s.state = StateClientVerifySent
	return frames, nil
}

// HandleSessionInitialized consumes the server's SESSION_INITIALIZED
// frame and transitions the session to ready (§4.4 step 6).
func (s *Session) HandleSessionInitialized(params []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateClientVerifySent {
		return ErrUnexpectedFrame
	}

	if err := s.crypto.HandleSessionInitialized(params); err != nil {
		s.state = StateClosed
		return err
	}

	s.state = StateReady
	return nil
}

// Encrypt produces a DATA_ENCRYPTED frame for command and payload.
// Valid only once the session is ready.
func (s *Session) Encrypt(command protocol.Command, payload []byte) (OutboundFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return OutboundFrame{}, ErrNotReady
	}

	body, err := s.crypto.Encrypt(command, payload)
	if err != nil {
		return OutboundFrame{}, err
	}
	return OutboundFrame{Kind: protocol.FrameDataEncrypted, Payload: body}, nil
}

// Decrypt consumes a DATA_ENCRYPTED frame body. On auth failure the
// session transitions to closed (§4.4: "On any crypto failure the
// session transitions to closed and notifies the supervisor").
func (s *Session) Decrypt(body []byte) (protocol.Command, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return 0, nil, ErrNotReady
	}

	command, payload, err := s.crypto.Decrypt(body)
	if err != nil {
		s.state = StateClosed
		return 0, nil, err
	}
	return command, payload, nil
}

// Close tears the session down, zeroing retained key material.
// Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.crypto.Close()
	s.state = StateClosed
}

func chunkClientVerify(payload []byte) []OutboundFrame {
	if len(payload) == 0 {
		return []OutboundFrame{{Kind: protocol.FrameClientVerifyEnd, Payload: nil}}
	}

	var frames []OutboundFrame
	for offset := 0; offset < len(payload); offset += MaxClientVerifyChunkSize {
		end := offset + MaxClientVerifyChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		kind := protocol.FrameClientVerify
		if end == len(payload) {
			kind = protocol.FrameClientVerifyEnd
		}
		frames = append(frames, OutboundFrame{Kind: kind, Payload: payload[offset:end]})
	}
	return frames
}
