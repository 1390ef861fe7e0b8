package simlock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lockengine/lockengine-go/pkg/transport"
	"github.com/lockengine/lockengine-go/pkg/wireframe"
)

// serviceUUIDFor builds an advertised service UUID whose trailing 14
// characters encode serial (with its separating dash removed), the
// shape transport.ScanFor's matching logic expects (§3).
func serviceUUIDFor(serial string) string {
	return "0000180f-0000-1000-8000-" + strings.ReplaceAll(serial, "-", "")
}

// Central is a transport.Central backed by a single simulated Device.
// Scan immediately yields one advertisement for it; Connect hands back
// a fresh Link and resets the device's handshake state for the new
// attempt (§4.3).
type Central struct {
	id     *Identity
	device *Device
}

// NewCentral creates a Central that always discovers device under
// id.Serial.
func NewCentral(id *Identity, device *Device) *Central {
	return &Central{id: id, device: device}
}

func (c *Central) Scan(ctx context.Context) (<-chan transport.Advertisement, error) {
	ch := make(chan transport.Advertisement, 1)
	go func() {
		defer close(ch)
		adv := transport.Advertisement{
			ServiceUUIDs: []string{serviceUUIDFor(c.id.Serial)},
			DeviceRef:    c.device,
		}
		select {
		case ch <- adv:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (c *Central) Connect(ctx context.Context, ref any) (transport.Link, error) {
	device, ok := ref.(*Device)
	if !ok {
		return nil, fmt.Errorf("simlock: unexpected device ref %T", ref)
	}
	device.BeginHandshake()
	return newLink(device), nil
}

// link is a transport.Link backed by a Device. Each of the three
// inbound characteristics is a channel buffered to four frames, fed by Write as the
// device produces responses; Close tears them down.
type link struct {
	device *Device

	secureNotify chan []byte
	lockNotify   chan []byte
	lockIndicate chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newLink(d *Device) *link {
	return &link{
		device:       d,
		secureNotify: make(chan []byte, 4),
		lockNotify:   make(chan []byte, 4),
		lockIndicate: make(chan []byte, 4),
		closed:       make(chan struct{}),
	}
}

func (l *link) SetupNotifications(ctx context.Context) (secureNotify, lockNotify, lockIndicate <-chan []byte, err error) {
	return l.secureNotify, l.lockNotify, l.lockIndicate, nil
}

func (l *link) Write(ctx context.Context, char transport.CharacteristicID, data []byte) error {
	stripped, err := wireframe.Strip(data)
	if err != nil {
		return err
	}

	switch char {
	case transport.CharSend:
		resp, err := l.device.HandleSecureFrame(stripped)
		if err != nil {
			return err
		}
		if resp != nil {
			return l.deliver(l.secureNotify, resp)
		}
		return nil

	case transport.CharLockNotify:
		indication, notifications, err := l.device.HandleDataFrame(stripped)
		if err != nil {
			return err
		}
		if indication != nil {
			if err := l.deliver(l.lockIndicate, indication); err != nil {
				return err
			}
		}
		for _, n := range notifications {
			if err := l.deliver(l.lockNotify, n); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("simlock: unexpected write characteristic %d", char)
	}
}

func (l *link) deliver(ch chan<- []byte, frame []byte) error {
	select {
	case ch <- frame:
		return nil
	case <-l.closed:
		return transport.ErrLinkClosed
	}
}

func (l *link) RequestHighPriority(ctx context.Context) error {
	return nil
}

func (l *link) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

var (
	_ transport.Central = (*Central)(nil)
	_ transport.Link    = (*link)(nil)
)
