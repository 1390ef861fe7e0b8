package commandmux

import (
	"sync"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// PendingTable holds at most one in-flight waiter per command byte
// (§4.5). Arming a command always installs a fresh one-shot waiter, so
// a slot that previously completed or errored never blocks a new
// request from arming cleanly.
type PendingTable struct {
	mu      sync.Mutex
	waiters map[protocol.Command]chan []byte
}

// NewPendingTable creates an empty pending table.
func NewPendingTable() *PendingTable {
	return &PendingTable{waiters: make(map[protocol.Command]chan []byte)}
}

// Arm installs a fresh one-shot waiter for cmd and returns the channel
// that receives the first matching indication payload. Callers must
// arm before writing the request, to close the race where the device
// responds before the waiter exists.
func (p *PendingTable) Arm(cmd protocol.Command) <-chan []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan []byte, 1)
	p.waiters[cmd] = ch
	return ch
}

// Disarm removes cmd's waiter without delivering anything, used when a
// request times out or its context is cancelled.
func (p *PendingTable) Disarm(cmd protocol.Command, ch <-chan []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.waiters[cmd]; ok && current == ch {
		delete(p.waiters, cmd)
	}
}

// Fulfill delivers payload to cmd's armed waiter, if any, and clears
// the slot. Returns false if no waiter was armed for cmd.
func (p *PendingTable) Fulfill(cmd protocol.Command, payload []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.waiters[cmd]
	if !ok {
		return false
	}
	delete(p.waiters, cmd)

	select {
	case ch <- payload:
	default:
	}
	return true
}
