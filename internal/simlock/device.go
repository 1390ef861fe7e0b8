package simlock

import (
	"crypto/rand"
	"sync"

	"github.com/lockengine/lockengine-go/pkg/protocol"
	"github.com/lockengine/lockengine-go/pkg/wireframe"
)

// Device is a simulated lock: the server side of the §4.4 handshake
// plus a command responder for every operation §4.6's LockApi issues.
// One Device models one physical lock across however many connection
// attempts its Central hands out (a fresh handshake per attempt, per
// §4.3's Linking -> Handshaking transition).
type Device struct {
	mu sync.Mutex

	id *Identity
	hs *handshake

	clientVerifyBuf []byte

	settings protocol.DeviceSettings
	version  protocol.FirmwareVersion
	state    protocol.LockState
	status   protocol.LockStatus

	registered bool

	// BusyThenSucceed, keyed by command, is the number of BUSY
	// responses a gated op (OPEN/CLOSE/PULL_SPRING) returns before
	// succeeding, demonstrating §8 scenario S2. Defaults to 0 (succeed
	// immediately) for every command not listed.
	BusyThenSucceed map[protocol.Command]int
	busyRemaining   map[protocol.Command]int
}

// NewDevice creates a simulated lock identified by serial, with
// reasonable default settings and firmware version.
func NewDevice(id *Identity) *Device {
	return &Device{
		id: id,
		settings: protocol.DeviceSettings{
			Revision:           1,
			AutoLockEnabled:    true,
			PullSpringEnabled:  true,
			AutoLockDelay:      270,
			PullSpringDuration: 60,
		},
		version:         protocol.FirmwareVersion{Major: 2, Minor: 4, Build: 118},
		state:           protocol.LockStateClosed,
		status:          protocol.LockStatusOK,
		BusyThenSucceed: map[protocol.Command]int{},
		busyRemaining:   map[protocol.Command]int{},
	}
}

// BeginHandshake resets any in-progress handshake state, used at the
// start of every connection attempt (§4.3 Linking -> Handshaking).
func (d *Device) BeginHandshake() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hs = newHandshake(d.id)
	d.clientVerifyBuf = nil
}

// HandleSecureFrame consumes one stripped frame from the secure
// handshake characteristic and returns zero or one frames to send back
// over the same channel.
func (d *Device) HandleSecureFrame(stripped wireframe.Stripped) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch stripped.Kind {
	case protocol.FrameHello:
		serverHello, err := d.hs.hello(stripped.Body[1:])
		if err != nil {
			return nil, err
		}
		return wireframe.Build(protocol.FrameHello, serverHello), nil

	case protocol.FrameServerVerify:
		record, err := d.hs.serverVerify(stripped.Body[1:])
		if err != nil {
			return nil, err
		}
		return wireframe.Build(protocol.FrameServerVerify, record), nil

	case protocol.FrameClientVerify:
		d.clientVerifyBuf = append(d.clientVerifyBuf, stripped.Body[1:]...)
		return nil, nil

	case protocol.FrameClientVerifyEnd:
		d.clientVerifyBuf = append(d.clientVerifyBuf, stripped.Body[1:]...)
		if err := d.hs.verifyClient(d.clientVerifyBuf); err != nil {
			return nil, err
		}
		d.clientVerifyBuf = nil
		return wireframe.Build(protocol.FrameSessionInitialized, nil), nil

	default:
		return nil, nil
	}
}

// HandleDataFrame consumes one stripped frame from the lock
// notification characteristic (a command write, plaintext or
// encrypted) and returns the indication response frame plus zero or
// more notification frames.
func (d *Device) HandleDataFrame(stripped wireframe.Stripped) (indication []byte, notifications [][]byte, err error) {
	var cmd protocol.Command
	var payload []byte

	d.mu.Lock()
	switch stripped.Kind {
	case protocol.FrameDataEncrypted:
		c, p, derr := d.hs.decrypt(stripped.Body[1:])
		if derr != nil {
			d.mu.Unlock()
			return nil, nil, derr
		}
		cmd, payload = protocol.Command(c), p
	case protocol.FrameDataNotEncrypted:
		if len(stripped.Body) < 2 {
			d.mu.Unlock()
			return nil, nil, wireframe.ErrEmptyFrame
		}
		cmd, payload = protocol.Command(stripped.Body[1]), stripped.Body[2:]
	default:
		d.mu.Unlock()
		return nil, nil, nil
	}
	encrypted := stripped.Kind == protocol.FrameDataEncrypted
	d.mu.Unlock()

	respPayload, notifPayloads := d.execute(cmd, payload)

	d.mu.Lock()
	defer d.mu.Unlock()

	// SET_SIGNED_TIME answers on the notification channel as
	// NOTIFICATION_SIGNED_DATETIME, not as an indication (§4.3): the
	// supervisor's refreshTime path writes the request directly rather
	// than through CommandMux, so there is no indication waiter to
	// fulfill.
	if cmd == protocol.CmdSetSignedTime {
		notif := append([]byte{byte(protocol.NotificationSignedDateTime)}, respPayload...)
		return nil, [][]byte{d.frameFor(encrypted, protocol.Command(notif[0]), notif[1:])}, nil
	}

	indication = d.frameFor(encrypted, cmd, respPayload)
	for _, np := range notifPayloads {
		notifications = append(notifications, d.frameFor(encrypted, protocol.Command(np[0]), np[1:]))
	}
	return indication, notifications, nil
}

// frameFor wraps a (command, payload) response the same way the
// request arrived: encrypted through the handshake's AEAD if the
// client wrote encrypted, plaintext otherwise.
func (d *Device) frameFor(encrypted bool, cmd protocol.Command, payload []byte) []byte {
	if encrypted {
		body := d.hs.encrypt(byte(cmd), payload)
		return wireframe.Build(protocol.FrameDataEncrypted, body)
	}
	body := make([]byte, 1+len(payload))
	body[0] = byte(cmd)
	copy(body[1:], payload)
	return wireframe.Build(protocol.FrameDataNotEncrypted, body)
}

// execute runs one command against the device's simulated state,
// returning the indication response payload (result code plus any
// trailing bytes) and any notifications to emit alongside it. Each
// notification in the returned slice is (type_byte, payload...).
func (d *Device) execute(cmd protocol.Command, payload []byte) (response []byte, notifications [][]byte) {
	switch cmd {
	case protocol.CmdOpen, protocol.CmdClose, protocol.CmdPullSpring:
		return d.executeGateOp(cmd), nil

	case protocol.CmdGetState:
		return []byte{byte(protocol.ResultSuccess), byte(d.state), byte(d.status)}, nil

	case protocol.CmdGetSettings:
		return d.encodeSettings(), nil

	case protocol.CmdGetVersion:
		return []byte{
			byte(protocol.ResultSuccess),
			d.version.Major, d.version.Minor,
			byte(d.version.Build >> 8), byte(d.version.Build),
			d.version.Revision,
		}, nil

	case protocol.CmdSetSignedTime:
		return []byte{byte(protocol.ResultSuccess)}, nil

	case protocol.CmdRequestSignedSerial:
		sig := make([]byte, 16)
		_, _ = rand.Read(sig)
		notif := append([]byte{byte(protocol.NotificationSignedSerial)}, sig...)
		return []byte{byte(protocol.ResultSuccess)}, [][]byte{notif}

	case protocol.CmdRegisterDevice:
		d.registered = true
		return []byte{byte(protocol.ResultSuccess)}, nil

	default:
		return []byte{byte(protocol.ResultError)}, nil
	}
}

func (d *Device) executeGateOp(cmd protocol.Command) []byte {
	remaining, configured := d.BusyThenSucceed[cmd]
	if configured {
		if d.busyRemaining[cmd] == 0 {
			d.busyRemaining[cmd] = remaining
		}
		if d.busyRemaining[cmd] > 0 {
			d.busyRemaining[cmd]--
			return []byte{byte(protocol.ResultBusy)}
		}
	}

	switch cmd {
	case protocol.CmdOpen:
		d.state, d.status = protocol.LockStateOpen, protocol.LockStatusOK
	case protocol.CmdClose:
		d.state, d.status = protocol.LockStateClosed, protocol.LockStatusOK
	}
	return []byte{byte(protocol.ResultSuccess)}
}

// encodeSettings mirrors protocol.ParseDeviceSettings's wire order: a
// leading reserved byte, flags, the four u16 delay fields, then
// revision trailing.
func (d *Device) encodeSettings() []byte {
	var flags byte
	set := func(enabled bool, bit byte) {
		if enabled {
			flags |= bit
		}
	}
	set(d.settings.AutoLockEnabled, 1<<7)
	set(d.settings.AutoLockImplicitEnabled, 1<<6)
	set(d.settings.PullSpringEnabled, 1<<5)
	set(d.settings.AutoPullSpringEnabled, 1<<4)
	set(d.settings.PostponedLockEnabled, 1<<3)
	set(d.settings.ButtonLockEnabled, 1<<2)
	set(d.settings.ButtonUnlockEnabled, 1<<1)

	out := make([]byte, 1+12)
	out[0] = byte(protocol.ResultSuccess)
	out[1] = 0
	out[2] = flags
	out[3] = byte(d.settings.AutoLockDelay >> 8)
	out[4] = byte(d.settings.AutoLockDelay)
	out[5] = byte(d.settings.PullSpringDuration >> 8)
	out[6] = byte(d.settings.PullSpringDuration)
	out[7] = byte(d.settings.PostponedLockDelay >> 8)
	out[8] = byte(d.settings.PostponedLockDelay)
	out[9] = byte(d.settings.AutoLockImplicitDelay >> 8)
	out[10] = byte(d.settings.AutoLockImplicitDelay)
	out[11] = byte(d.settings.Revision >> 8)
	out[12] = byte(d.settings.Revision)
	return out
}
