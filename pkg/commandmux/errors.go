package commandmux

import (
	"errors"
	"fmt"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// ErrMuxClosed indicates an operation was attempted after Close.
var ErrMuxClosed = errors.New("command mux closed")

// NotificationTimeoutError reports that AwaitNotification's timeout
// elapsed before a matching notification arrived.
type NotificationTimeoutError struct {
	Type protocol.NotificationType
}

func (e *NotificationTimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for notification %s", e.Type)
}
