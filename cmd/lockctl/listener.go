package main

import (
	"fmt"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// consoleListener implements both supervisor.SecureListener and
// supervisor.UnsecureListener, printing connection and lock events to
// stdout as they happen. The interactive REPL installs one per
// connection, mirroring how the teacher's interactive commands print
// device state changes directly rather than polling.
type consoleListener struct{}

func (consoleListener) OnLockStatusChanged(state protocol.LockState, status protocol.LockStatus) {
	fmt.Printf("\n[lock] state=%s status=%s\n", lockStateName(state), lockStatusName(status))
}

func (consoleListener) OnNotification(payload []byte) {
	if len(payload) == 0 {
		return
	}
	fmt.Printf("\n[notify] type=%s bytes=%d\n", protocol.NotificationType(payload[0]), len(payload)-1)
}

func (consoleListener) OnError(err error) {
	fmt.Printf("\n[error] %v\n", err)
}

func (consoleListener) OnConnectionChanged(connecting, connected bool) {
	fmt.Printf("\n[conn] connecting=%v connected=%v\n", connecting, connected)
}

func (consoleListener) OnUnsecureConnectionChanged(connecting, connected bool) {
	fmt.Printf("\n[conn/add-lock] connecting=%v connected=%v\n", connecting, connected)
}

func lockStateName(s protocol.LockState) string {
	switch s {
	case protocol.LockStateOpen:
		return "OPEN"
	case protocol.LockStateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("0x%02X", uint8(s))
	}
}

func lockStatusName(s protocol.LockStatus) string {
	switch s {
	case protocol.LockStatusOK:
		return "OK"
	case protocol.LockStatusJammed:
		return "JAMMED"
	case protocol.LockStatusTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("0x%02X", uint8(s))
	}
}
