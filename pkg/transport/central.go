package transport

import (
	"context"
	"errors"
)

// ErrLinkClosed is returned by Link operations attempted after Close.
var ErrLinkClosed = errors.New("transport: link closed")

// CharacteristicID identifies one of the four fixed GATT
// characteristics the lock exposes (§6): send, secure-notify,
// lock-indicate, lock-notify.
type CharacteristicID uint8

const (
	CharSend          CharacteristicID = iota // client write
	CharSecureNotify                          // secure-handshake notifications
	CharLockIndicate                          // command response indications
	CharLockNotify                            // asynchronous notifications
)

// Advertisement is a single scan result.
type Advertisement struct {
	// ServiceUUIDs are the service UUIDs advertised by the
	// peripheral. The serial is encoded in the last 14 characters of
	// one of them (§3).
	ServiceUUIDs []string

	// DeviceRef opaquely identifies the peripheral to the underlying
	// radio stack; passed back into Central.Connect unexamined.
	DeviceRef any
}

// Central is the external radio-stack collaborator this package
// drives. Implementations wrap whatever native BLE central API the
// host platform exposes; permission and radio-enabled checks are the
// caller's responsibility (§1 out of scope).
type Central interface {
	// Scan starts a low-latency scan and delivers advertisements on
	// the returned channel until ctx is cancelled or Stop is called.
	// The channel is closed on scan termination.
	Scan(ctx context.Context) (<-chan Advertisement, error)

	// Connect opens the radio link to the peripheral identified by
	// ref (an Advertisement.DeviceRef) and returns a Link once GATT
	// setup succeeds.
	Connect(ctx context.Context, ref any) (Link, error)
}

// Link is an established radio connection to a lock, after service
// and characteristic discovery.
type Link interface {
	// SetupNotifications subscribes to the three inbound
	// characteristics and returns one channel per stream (§4.1).
	SetupNotifications(ctx context.Context) (secureNotify, lockNotify, lockIndicate <-chan []byte, err error)

	// Write enqueues an outbound write to the given characteristic.
	// Writes to the same characteristic are serialized by the
	// implementation (§5).
	Write(ctx context.Context, char CharacteristicID, data []byte) error

	// RequestHighPriority is a best-effort connection-interval
	// optimization (§4.1); callers must swallow its errors.
	RequestHighPriority(ctx context.Context) error

	// Close tears down the radio link.
	Close() error
}
