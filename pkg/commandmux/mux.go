package commandmux

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lockengine/lockengine-go/pkg/protocol"
	"github.com/lockengine/lockengine-go/pkg/securesession"
	"github.com/lockengine/lockengine-go/pkg/wireframe"
)

// DefaultTimeout bounds both Request and AwaitNotification (§4.5).
const DefaultTimeout = 30 * time.Second

// ErrNoActiveSession indicates an encrypted write or inbound
// DATA_ENCRYPTED frame arrived with no secure session installed.
var ErrNoActiveSession = errors.New("no active secure session")

// ErrUnexpectedFrameKind indicates an inbound frame on the indication
// or notification stream was neither DATA_ENCRYPTED nor
// DATA_NOT_ENCRYPTED.
var ErrUnexpectedFrameKind = errors.New("unexpected frame kind on data stream")

// Session is the subset of securesession.Session the mux depends on,
// narrowed so tests can substitute a stub.
type Session interface {
	Encrypt(command protocol.Command, payload []byte) (securesession.OutboundFrame, error)
	Decrypt(body []byte) (protocol.Command, []byte, error)
}

// WriteFunc writes a fully framed message to the lock notification
// characteristic.
type WriteFunc func(ctx context.Context, frame []byte) error

// Mux demultiplexes inbound frames into request/response waiters and a
// notification bus, and serializes outbound requests through the
// active secure session (§4.5).
type Mux struct {
	pending *PendingTable
	bus     *NotificationBus
	write   WriteFunc

	sessionMu sync.RWMutex
	session   Session

	lockStatusListener func(state protocol.LockState, status protocol.LockStatus)
	needDateTime       func()

	cmdLocksMu sync.Mutex
	cmdLocks   map[protocol.Command]*sync.Mutex
}

// New creates a mux that writes outbound frames via write.
func New(write WriteFunc) *Mux {
	return &Mux{
		pending:  NewPendingTable(),
		bus:      NewNotificationBus(),
		write:    write,
		cmdLocks: make(map[protocol.Command]*sync.Mutex),
	}
}

// lockFor returns the serialization mutex for cmd, creating it on
// first use. A second Request for the same command byte blocks here
// until the first completes or times out (§3: "at most one
// outstanding waiter per command_byte at any moment").
func (m *Mux) lockFor(cmd protocol.Command) *sync.Mutex {
	m.cmdLocksMu.Lock()
	defer m.cmdLocksMu.Unlock()

	l, ok := m.cmdLocks[cmd]
	if !ok {
		l = &sync.Mutex{}
		m.cmdLocks[cmd] = l
	}
	return l
}

// SetSession installs the active secure session, enabling encrypted
// requests and decrypt of inbound DATA_ENCRYPTED frames.
func (m *Mux) SetSession(s Session) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	m.session = s
}

// ClearSession removes the active secure session, e.g. on link loss.
func (m *Mux) ClearSession() {
	m.SetSession(nil)
}

// OnLockStatusChange registers the callback invoked for
// NOTIFICATION_LOCK_STATUS_CHANGE in addition to bus fan-out (§4.5).
func (m *Mux) OnLockStatusChange(fn func(state protocol.LockState, status protocol.LockStatus)) {
	m.lockStatusListener = fn
}

// OnNeedDateTime registers the callback invoked for
// NOTIFICATION_NEED_DATE_TIME in addition to bus fan-out (§4.5, §4.3).
func (m *Mux) OnNeedDateTime(fn func()) {
	m.needDateTime = fn
}

// HandleIndication processes a stripped frame from the lock indication
// characteristic, fulfilling the matching pending request waiter.
func (m *Mux) HandleIndication(stripped wireframe.Stripped) error {
	cmd, payload, err := m.decode(stripped)
	if err != nil {
		return err
	}
	m.pending.Fulfill(cmd, payload)
	return nil
}

// HandleNotification processes a stripped frame from the lock
// notification characteristic, publishing it to the notification bus
// and invoking the special-cased listeners (§4.5).
func (m *Mux) HandleNotification(stripped wireframe.Stripped) error {
	typeByte, payload, err := m.decode(stripped)
	if err != nil {
		return err
	}

	nt := protocol.NotificationType(typeByte)
	switch nt {
	case protocol.NotificationLockStatusChange:
		if len(payload) >= 2 && m.lockStatusListener != nil {
			m.lockStatusListener(protocol.LockState(payload[0]), protocol.LockStatus(payload[1]))
		}
	case protocol.NotificationNeedDateTime:
		if m.needDateTime != nil {
			m.needDateTime()
		}
	}

	m.bus.Publish(nt, payload)
	return nil
}

// decode strips the data-channel marker byte and, for encrypted
// frames, runs the secure session's AEAD decrypt (§4.5 step 2).
func (m *Mux) decode(stripped wireframe.Stripped) (protocol.Command, []byte, error) {
	switch stripped.Kind {
	case protocol.FrameDataEncrypted:
		session := m.currentSession()
		if session == nil {
			return 0, nil, ErrNoActiveSession
		}
		return session.Decrypt(stripped.Body[1:])
	case protocol.FrameDataNotEncrypted:
		if len(stripped.Body) < 2 {
			return 0, nil, wireframe.ErrEmptyFrame
		}
		return protocol.Command(stripped.Body[1]), stripped.Body[2:], nil
	default:
		return 0, nil, ErrUnexpectedFrameKind
	}
}

func (m *Mux) currentSession() Session {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()
	return m.session
}

// Request arms a one-shot waiter for cmd, writes the request (through
// the secure session if encrypted is true, else plaintext), and
// returns the first matching indication payload. timeout <= 0 uses
// DefaultTimeout (§4.5).
func (m *Mux) Request(ctx context.Context, cmd protocol.Command, payload []byte, encrypted bool, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	lock := m.lockFor(cmd)
	lock.Lock()
	defer lock.Unlock()

	ch := m.pending.Arm(cmd)

	frame, err := m.buildOutbound(cmd, payload, encrypted)
	if err != nil {
		m.pending.Disarm(cmd, ch)
		return nil, err
	}

	if err := m.write(ctx, frame); err != nil {
		m.pending.Disarm(cmd, ch)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		m.pending.Disarm(cmd, ch)
		return nil, &protocol.TimeoutError{Command: cmd}
	case <-ctx.Done():
		m.pending.Disarm(cmd, ch)
		return nil, ctx.Err()
	}
}

func (m *Mux) buildOutbound(cmd protocol.Command, payload []byte, encrypted bool) ([]byte, error) {
	if encrypted {
		session := m.currentSession()
		if session == nil {
			return nil, ErrNoActiveSession
		}
		out, err := session.Encrypt(cmd, payload)
		if err != nil {
			return nil, err
		}
		return wireframe.Build(out.Kind, out.Payload), nil
	}

	body := make([]byte, 1+len(payload))
	body[0] = byte(cmd)
	copy(body[1:], payload)
	return wireframe.Build(protocol.FrameDataNotEncrypted, body), nil
}

// AwaitNotification waits for the next notification of type t matching
// filter (if non-nil), returning its payload (the bytes after the type
// byte). timeout <= 0 uses DefaultTimeout (§4.5).
func (m *Mux) AwaitNotification(ctx context.Context, t protocol.NotificationType, filter NotificationFilter, timeout time.Duration) ([]byte, error) {
	ch, cancel := m.Subscribe(t, filter)
	defer cancel()
	return Await(ctx, ch, t, timeout)
}

// Subscribe arms a notification waiter without blocking. Callers that
// need to subscribe before issuing the request that triggers the
// notification (§4.5, §8 scenario 3: the signed-serial race) call
// Subscribe first and pass the returned channel to Await once the
// request has been written.
func (m *Mux) Subscribe(t protocol.NotificationType, filter NotificationFilter) (<-chan []byte, func()) {
	return m.bus.Subscribe(t, filter)
}

// Await blocks on a channel returned by Subscribe until a notification
// arrives, ctx is cancelled, or timeout elapses. timeout <= 0 uses
// DefaultTimeout.
func Await(ctx context.Context, ch <-chan []byte, t protocol.NotificationType, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		return payload, nil
	case <-timer.C:
		return nil, &NotificationTimeoutError{Type: t}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
