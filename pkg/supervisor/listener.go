package supervisor

import (
	"fmt"

	"github.com/lockengine/lockengine-go/pkg/cert"
	"github.com/lockengine/lockengine-go/pkg/log"
	"github.com/lockengine/lockengine-go/pkg/protocol"
	"github.com/lockengine/lockengine-go/pkg/securesession"
)

// BaseListener receives the connection events common to both secure
// and add-lock mode (§6).
type BaseListener interface {
	OnLockStatusChanged(state protocol.LockState, status protocol.LockStatus)
	OnNotification(payload []byte)
	OnError(err error)
}

// SecureListener is the connection listener for normal (certificated)
// mode (§6).
type SecureListener interface {
	BaseListener
	OnConnectionChanged(connecting, connected bool)
}

// UnsecureListener is the connection listener for add-lock mode (§6):
// the same events as SecureListener, but the connection-changed
// callback has its own name on the wire contract. Modeling the two
// modes as distinct listener types (rather than one listener with a
// nullable secure-mode field) follows the capability-typed design
// called for in SPEC_FULL §9: the compiler, not a runtime nil check,
// enforces that a given Supervisor only ever drives one shape of
// callback.
type UnsecureListener interface {
	BaseListener
	OnUnsecureConnectionChanged(connecting, connected bool)
}

// CryptoFactory constructs a fresh Crypto instance for a handshake
// attempt. The algorithm itself is opaque to this engine (§4.4); tests
// and callers supply securesession.NewReferenceCrypto or an equivalent.
type CryptoFactory func() (securesession.Crypto, error)

// Config configures a Supervisor. Exactly one of Secure or Unsecure
// must be set, matching whether Certificate is present.
type Config struct {
	Serial         string
	KeepConnection bool

	// Certificate is nil in add-lock mode; SecureSession is then never
	// instantiated and only plaintext commands are used (§4.4).
	Certificate *cert.DeviceCertificate
	NewCrypto   CryptoFactory

	SignedTimeProvider SignedTimeProvider

	Secure   SecureListener
	Unsecure UnsecureListener

	// Logger receives protocol log events for this connection (§10 of
	// SPEC_FULL). Defaults to log.NoopLogger if nil.
	Logger log.Logger

	// ConnectionID correlates log events across a connection's
	// lifetime. Generated with a random UUID if left empty.
	ConnectionID string
}

// AddLockMode reports whether this configuration runs without a
// secure session.
func (c Config) AddLockMode() bool {
	return c.Certificate == nil
}

func (c Config) notifyConnectionChanged(connecting, connected bool) {
	switch {
	case c.Secure != nil:
		c.Secure.OnConnectionChanged(connecting, connected)
	case c.Unsecure != nil:
		c.Unsecure.OnUnsecureConnectionChanged(connecting, connected)
	}
}

func (c Config) notifyLockStatusChanged(state protocol.LockState, status protocol.LockStatus) {
	if l := c.base(); l != nil {
		l.OnLockStatusChanged(state, status)
	}
}

func (c Config) notifyNotification(payload []byte) {
	if l := c.base(); l != nil {
		l.OnNotification(payload)
	}
}

func (c Config) notifyError(err error) {
	if l := c.base(); l != nil {
		l.OnError(err)
	}
}

func (c Config) base() BaseListener {
	switch {
	case c.Secure != nil:
		return c.Secure
	case c.Unsecure != nil:
		return c.Unsecure
	default:
		return nil
	}
}

// AlertError wraps an inbound ALERT frame's code, surfaced from the
// handshake driver so the supervisor can branch on it (§4.3).
type AlertError struct {
	Code protocol.AlertCode
}

func (e *AlertError) Error() string {
	return fmt.Sprintf("alert: %s", e.Code)
}
