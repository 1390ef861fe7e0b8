package protocol

// Command identifies a request/response pair by the byte echoed in
// the indication response. It is also the correlation key for the
// pending request table in pkg/commandmux.
type Command uint8

const (
	CmdOpen               Command = 0x51
	CmdClose              Command = 0x52
	CmdPullSpring         Command = 0x53
	CmdGetState           Command = 0x10
	CmdGetSettings        Command = 0x20
	CmdGetVersion         Command = 0x30
	CmdSetSignedTime      Command = 0x40
	CmdRequestSignedSerial Command = 0x74
	CmdRegisterDevice     Command = 0x60
)

// String returns the command name. The source SDK's own
// mapHeaderToLockCommandName table omits several of these for
// logging purposes only; we name every command this engine can issue.
func (c Command) String() string {
	switch c {
	case CmdOpen:
		return "OPEN"
	case CmdClose:
		return "CLOSE"
	case CmdPullSpring:
		return "PULL_SPRING"
	case CmdGetState:
		return "GET_STATE"
	case CmdGetSettings:
		return "GET_SETTINGS"
	case CmdGetVersion:
		return "GET_VERSION"
	case CmdSetSignedTime:
		return "SET_SIGNED_TIME"
	case CmdRequestSignedSerial:
		return "REQUEST_SIGNED_SERIAL"
	case CmdRegisterDevice:
		return "REGISTER_DEVICE"
	default:
		return "UNKNOWN"
	}
}

// Param is an operation-level parameter byte accepted by open/close/
// pull-spring style operations.
type Param uint8

const (
	ParamNone        Param = 0x00
	ParamAuto        Param = 0x01
	ParamForce       Param = 0x02
	ParamWithoutPull Param = 0x03
)

// NotificationType identifies an asynchronous notification by the
// first byte of its payload.
type NotificationType uint8

const (
	NotificationLockStatusChange NotificationType = 0xBA
	NotificationSignedSerial     NotificationType = 0x7A

	// NotificationNeedDateTime is 0x7B sent unprompted to trigger a
	// signed-time refresh (§4.3, §4.5), and NotificationSignedDateTime
	// is the same 0x7B sent in answer to SET_SIGNED_TIME (scenario
	// S4). Both names refer to the one wire value; which meaning
	// applies depends on whether a SET_SIGNED_TIME write is in flight.
	NotificationNeedDateTime   NotificationType = 0x7B
	NotificationSignedDateTime NotificationType = 0x7B
)

// String returns the notification type name.
func (n NotificationType) String() string {
	switch n {
	case NotificationLockStatusChange:
		return "LOCK_STATUS_CHANGE"
	case NotificationNeedDateTime:
		return "NEED_DATE_TIME"
	case NotificationSignedSerial:
		return "SIGNED_SERIAL"
	default:
		return "UNKNOWN"
	}
}

// LockState is the first byte of a LOCK_STATUS_CHANGE notification
// payload and the target byte of wait_for_lock_status_change.
type LockState uint8

const (
	LockStateOpen   LockState = 0x01
	LockStateClosed LockState = 0x06
)

// LockStatus is the second byte of a LOCK_STATUS_CHANGE notification
// payload, reporting the outcome of the transition.
type LockStatus uint8

const (
	LockStatusOK      LockStatus = 0x00
	LockStatusJammed  LockStatus = 0x01
	LockStatusTimeout LockStatus = 0x02
)
