package transport

import (
	"context"
	"time"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// DefaultScanTimeout bounds a scan when keep_connection is false
// (§4.1).
const DefaultScanTimeout = 30 * time.Second

// DeviceHandle identifies a located lock, ready to be connected.
type DeviceHandle struct {
	Serial string
	Ref    any
}

// ScanFor scans for a lock advertising the given serial number.
// Scanning is bounded by DefaultScanTimeout unless keepConnection is
// true, in which case it runs until ctx is cancelled. A bounded
// timeout surfaces as ErrDeviceNotFound (§4.1).
func ScanFor(ctx context.Context, central Central, serial string, keepConnection bool) (DeviceHandle, error) {
	if err := protocol.ValidateSerial(serial); err != nil {
		return DeviceHandle{}, err
	}

	scanCtx := ctx
	var cancel context.CancelFunc
	if !keepConnection {
		scanCtx, cancel = context.WithTimeout(ctx, DefaultScanTimeout)
		defer cancel()
	}

	adverts, err := central.Scan(scanCtx)
	if err != nil {
		return DeviceHandle{}, err
	}

	for {
		select {
		case adv, ok := <-adverts:
			if !ok {
				return DeviceHandle{}, ErrDeviceNotFound
			}
			if matchesSerial(adv, serial) {
				return DeviceHandle{Serial: serial, Ref: adv.DeviceRef}, nil
			}
		case <-scanCtx.Done():
			return DeviceHandle{}, ErrDeviceNotFound
		}
	}
}

// matchesSerial reports whether any of the advertisement's service
// UUIDs encode the wanted serial in their last 14 characters (§3).
func matchesSerial(adv Advertisement, serial string) bool {
	for _, uuid := range adv.ServiceUUIDs {
		if matched, _ := protocol.SerialFromServiceUUID(uuid, serial); matched {
			return true
		}
	}
	return false
}
