package commandmux

import (
	"sync"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// NotificationFilter further restricts a subscription beyond its
// notification type, inspecting the payload bytes after the type byte.
type NotificationFilter func(payload []byte) bool

type subscriber struct {
	ch     chan []byte
	filter NotificationFilter
}

// NotificationBus fans inbound notifications out to subscribers keyed
// by notification type. Subscribers only ever see notifications
// published after they subscribe; there is no backlog for late
// subscribers (§4.5).
type NotificationBus struct {
	mu          sync.Mutex
	subscribers map[protocol.NotificationType][]*subscriber
}

// NewNotificationBus creates an empty notification bus.
func NewNotificationBus() *NotificationBus {
	return &NotificationBus{subscribers: make(map[protocol.NotificationType][]*subscriber)}
}

// Subscribe registers interest in notifications of the given type,
// optionally narrowed by filter. The returned channel is buffered so a
// slow consumer never blocks Publish; cancel removes the subscription.
func (b *NotificationBus) Subscribe(t protocol.NotificationType, filter NotificationFilter) (ch <-chan []byte, cancel func()) {
	sub := &subscriber{ch: make(chan []byte, 8), filter: filter}

	b.mu.Lock()
	b.subscribers[t] = append(b.subscribers[t], sub)
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[t]
		for i, s := range subs {
			if s == sub {
				b.subscribers[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subscribers[t]) == 0 {
			delete(b.subscribers, t)
		}
	}
}

// Publish delivers payload (the bytes after the type byte) to every
// subscriber of t whose filter, if any, matches.
func (b *NotificationBus) Publish(t protocol.NotificationType, payload []byte) {
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subscribers[t]...)
	b.mu.Unlock()

	for _, s := range subs {
		if s.filter != nil && !s.filter(payload) {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
}
