package transport

import (
	"context"
	"time"
)

// HighPriorityDelay and HighPriorityTimeout bound the best-effort
// connection-interval request (§4.1, §5).
const (
	HighPriorityDelay   = 1 * time.Millisecond
	HighPriorityTimeout = 2 * time.Second
)

// ConnectionListener receives transport-level lifecycle events (§6).
type ConnectionListener interface {
	OnConnectionChanged(connecting, connected bool)
}

// Connection wraps an established Link with the retry policy,
// high-priority request, and connection-state callbacks specified in
// §4.1.
type Connection struct {
	Link     Link
	Listener ConnectionListener
}

// Connect opens a link to device under the given retry policy,
// reporting (connecting=true, connected=false) to listener once before
// the first attempt, then (false, true) when an attempt succeeds or
// (false, false) when the policy gives up (§4.1).
func Connect(ctx context.Context, central Central, device DeviceHandle, policy *RetryPolicy, listener ConnectionListener) (*Connection, error) {
	var link Link

	notify(listener, true, false)

	err := policy.Attempt(ctx, func(attemptCtx context.Context) error {
		l, err := central.Connect(attemptCtx, device.Ref)
		if err != nil {
			return err
		}
		link = l
		return nil
	})
	if err != nil {
		notify(listener, false, false)
		return nil, err
	}

	notify(listener, false, true)
	return &Connection{Link: link, Listener: listener}, nil
}

func notify(listener ConnectionListener, connecting, connected bool) {
	if listener != nil {
		listener.OnConnectionChanged(connecting, connected)
	}
}

// RequestHighPriority asks the link for a shorter connection
// interval. Per §4.1 this is best-effort: failures (including
// timeout) are swallowed, since priority is purely an optimization.
func RequestHighPriority(ctx context.Context, link Link) {
	time.Sleep(HighPriorityDelay)

	ctx, cancel := context.WithTimeout(ctx, HighPriorityTimeout)
	defer cancel()

	_ = link.RequestHighPriority(ctx)
}
