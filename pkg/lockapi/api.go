package lockapi

import (
	"context"
	"errors"
	"time"

	"github.com/lockengine/lockengine-go/pkg/commandmux"
	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// Mux is the subset of *commandmux.Mux the API depends on, narrowed so
// tests can substitute a stub.
type Mux interface {
	Request(ctx context.Context, cmd protocol.Command, payload []byte, encrypted bool, timeout time.Duration) ([]byte, error)
	Subscribe(t protocol.NotificationType, filter commandmux.NotificationFilter) (<-chan []byte, func())
}

// WaitTimeout is the §5 default for the suspending wait operations
// this package exposes. Request-style operations accept ctx for
// cancellation but take no timeout override; the mux applies its own
// DefaultTimeout to each request.
const WaitTimeout = 30 * time.Second

// API is the typed operation layer of §4.6, built on a ready
// CommandMux. Callers obtain one from the supervisor once the session
// reaches Ready (or ReadyUnsecure in add-lock mode).
type API struct {
	mux       Mux
	encrypted bool
}

// New creates an API issuing requests through mux. encrypted selects
// whether commands are written through the secure session (normal
// mode) or in plaintext (add-lock mode, §4.4).
func New(mux Mux, encrypted bool) *API {
	return &API{mux: mux, encrypted: encrypted}
}

func (a *API) request(ctx context.Context, cmd protocol.Command, payload []byte) ([]byte, error) {
	return a.mux.Request(ctx, cmd, payload, a.encrypted, 0)
}

// result extracts the result code at payload[0] (the byte at index 1
// of the full indication response, §4.6) and maps it to an error via
// opErr for the op-specific ResultError(0x02) case.
func result(payload []byte, opErr error) (protocol.ResultCode, error) {
	if len(payload) == 0 {
		return 0, errors.New("empty indication payload")
	}
	code := protocol.ResultCode(payload[0])
	return code, protocol.MapResultError(code, opErr)
}

// doGateOp runs a gated open/close/pull-spring style operation: write
// cmd with a single param byte, retry transparently on BUSY, and on a
// GeneralLockErrorCode opportunistically refresh observed state with a
// best-effort GET_STATE (§4.6).
func (a *API) doGateOp(ctx context.Context, cmd protocol.Command, param protocol.Param) error {
	_, err := withBusyRetry(ctx, func() ([]byte, error) {
		payload, err := a.request(ctx, cmd, []byte{byte(param)})
		if err != nil {
			return nil, err
		}
		_, opErr := result(payload, nil)
		return payload, opErr
	})

	var generalErr *protocol.GeneralLockErrorCode
	if errors.As(err, &generalErr) {
		_, _ = a.GetState(ctx)
	}

	return err
}

// Open issues OPEN with the given parameter byte (§4.6, §8 scenario
// S1/S2).
func (a *API) Open(ctx context.Context, param protocol.Param) error {
	return a.doGateOp(ctx, protocol.CmdOpen, param)
}

// Close issues CLOSE with the given parameter byte.
func (a *API) Close(ctx context.Context, param protocol.Param) error {
	return a.doGateOp(ctx, protocol.CmdClose, param)
}

// PullSpring issues PULL_SPRING with the given parameter byte.
func (a *API) PullSpring(ctx context.Context, param protocol.Param) error {
	return a.doGateOp(ctx, protocol.CmdPullSpring, param)
}

// LockStateReport is the decoded GET_STATE response: the lock's
// reported position and the status of its last transition.
type LockStateReport struct {
	State  protocol.LockState
	Status protocol.LockStatus
}

// GetState issues GET_STATE and returns the lock's current state and
// status, mirroring the (state, status) byte pair carried by a
// NOTIFICATION_LOCK_STATUS_CHANGE.
func (a *API) GetState(ctx context.Context) (LockStateReport, error) {
	payload, err := a.request(ctx, protocol.CmdGetState, nil)
	if err != nil {
		return LockStateReport{}, err
	}

	code, opErr := result(payload, nil)
	if opErr != nil {
		return LockStateReport{}, opErr
	}
	if !code.IsSuccess() {
		return LockStateReport{}, nil
	}

	var report LockStateReport
	if len(payload) > 1 {
		report.State = protocol.LockState(payload[1])
	}
	if len(payload) > 2 {
		report.Status = protocol.LockStatus(payload[2])
	}
	return report, nil
}

// GetSettings issues GET_SETTINGS and parses the 13-byte settings
// payload that follows the result byte (§4.6).
func (a *API) GetSettings(ctx context.Context) (protocol.DeviceSettings, error) {
	payload, err := a.request(ctx, protocol.CmdGetSettings, nil)
	if err != nil {
		return protocol.DeviceSettings{}, err
	}
	if _, opErr := result(payload, nil); opErr != nil {
		return protocol.DeviceSettings{}, opErr
	}
	if len(payload) < 1 {
		return protocol.DeviceSettings{}, protocol.ErrShortSettingsPayload
	}
	return protocol.ParseDeviceSettings(payload[1:])
}

// GetVersion issues GET_VERSION and parses the firmware version
// payload that follows the result byte (§4.6).
func (a *API) GetVersion(ctx context.Context) (protocol.FirmwareVersion, error) {
	payload, err := a.request(ctx, protocol.CmdGetVersion, nil)
	if err != nil {
		return protocol.FirmwareVersion{}, err
	}
	if _, opErr := result(payload, nil); opErr != nil {
		return protocol.FirmwareVersion{}, opErr
	}
	if len(payload) < 1 {
		return protocol.FirmwareVersion{}, protocol.ErrShortVersionPayload
	}
	return protocol.ParseFirmwareVersion(payload[1:])
}

// SetSignedTime issues SET_SIGNED_TIME with the given wire payload
// (built by protocol.EncodeSignedTime). This is the same request the
// supervisor's signed-time refresh flow (§4.3) issues; exposed here so
// callers driving the flow manually get the same result-code mapping.
func (a *API) SetSignedTime(ctx context.Context, payload []byte) error {
	resp, err := a.request(ctx, protocol.CmdSetSignedTime, payload)
	if err != nil {
		return err
	}
	_, opErr := result(resp, protocol.ErrSetSignedTime)
	return opErr
}

// GetSignature performs the two-step signed-serial retrieval of §4.6:
// subscribe to NOTIFICATION_SIGNED_SERIAL before writing
// REQUEST_SIGNED_SERIAL, so the request can never race ahead of the
// subscription (§8 scenario S3). Returns the raw signature bytes
// (after the notification's type byte); callers base64-encode for
// transport as the original public API does.
func (a *API) GetSignature(ctx context.Context) ([]byte, error) {
	ch, cancel := a.mux.Subscribe(protocol.NotificationSignedSerial, nil)
	defer cancel()

	ackPayload, err := a.request(ctx, protocol.CmdRequestSignedSerial, nil)
	if err != nil {
		return nil, err
	}
	if _, opErr := result(ackPayload, protocol.ErrRequestSignature); opErr != nil {
		return nil, opErr
	}

	return commandmux.Await(ctx, ch, protocol.NotificationSignedSerial, WaitTimeout)
}

// RegisterDevice issues REGISTER_DEVICE with the given payload.
func (a *API) RegisterDevice(ctx context.Context, payload []byte) error {
	resp, err := a.request(ctx, protocol.CmdRegisterDevice, payload)
	if err != nil {
		return err
	}
	_, opErr := result(resp, protocol.ErrRegisterDevice)
	return opErr
}

// WaitForLockStatusChange waits for a NOTIFICATION_LOCK_STATUS_CHANGE
// whose state byte equals target, failing fast on JAMMED or TIMEOUT
// status regardless of the reported state (§4.6, §8 scenario S6).
func (a *API) WaitForLockStatusChange(ctx context.Context, target protocol.LockState) error {
	ch, cancel := a.mux.Subscribe(protocol.NotificationLockStatusChange, nil)
	defer cancel()

	deadline := time.Now().Add(WaitTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &commandmux.NotificationTimeoutError{Type: protocol.NotificationLockStatusChange}
		}

		payload, err := commandmux.Await(ctx, ch, protocol.NotificationLockStatusChange, remaining)
		if err != nil {
			return err
		}
		if len(payload) < 2 {
			continue
		}

		state := protocol.LockState(payload[0])
		status := protocol.LockStatus(payload[1])

		switch status {
		case protocol.LockStatusJammed:
			return protocol.ErrLockJammed
		case protocol.LockStatusTimeout:
			return protocol.ErrLockNotResponding
		}

		if state == target {
			return nil
		}
	}
}
