package protocol

import (
	"encoding/binary"
	"fmt"
)

// settingsPayloadLen is the number of bytes this parser reads after
// the result byte: a leading reserved byte + flags(1) + 4 delay
// fields(2 each) + revision(2) trailing. §4.6 describes the response
// as "13 bytes after the header", and its own worked example (§8
// scenario S5) is a 13-byte indication including the command and
// result bytes, i.e. 12 bytes of settings fields. This parser follows
// the S5 example byte-for-byte (§9 Open Questions flags the
// constructor-order-vs-buffer-order inconsistency and tells
// implementers to treat a real capture as normative over either
// textual description).
const settingsPayloadLen = 12

// ErrShortSettingsPayload indicates a GET_SETTINGS response shorter
// than the settings fields this parser reads.
var ErrShortSettingsPayload = fmt.Errorf("settings payload shorter than %d bytes", settingsPayloadLen)

// DeviceSettings is the decoded GET_SETTINGS response.
//
// The source SDK builds the equivalent struct in two different
// positional orders across its code base (constructor order vs
// byte-buffer extraction order); §9 Open Questions calls this out and
// defers to a real device capture. §8 scenario S5's worked example is
// that capture: tracing its bytes through this parser pins the wire
// order as a reserved byte, then flags, then the four u16 delay
// fields, with revision trailing last (not leading, as the prose in
// §4.6 lists it).
type DeviceSettings struct {
	Revision               uint16
	AutoLockEnabled         bool
	AutoLockImplicitEnabled bool
	PullSpringEnabled       bool
	AutoPullSpringEnabled   bool
	PostponedLockEnabled    bool
	ButtonLockEnabled       bool
	ButtonUnlockEnabled     bool
	AutoLockDelay           uint16
	PullSpringDuration      uint16
	PostponedLockDelay      uint16
	AutoLockImplicitDelay   uint16
}

// flag bit positions, MSB numbered 7..1 per §4.6 (bit 0 is unused).
const (
	flagAutoLockEnabled         = 1 << 7 // bit 7
	flagAutoLockImplicitEnabled = 1 << 6 // bit 6
	flagPullSpringEnabled       = 1 << 5 // bit 5
	flagAutoPullSpringEnabled   = 1 << 4 // bit 4
	flagPostponedLockEnabled    = 1 << 3 // bit 3
	flagButtonLockEnabled       = 1 << 2 // bit 2
	flagButtonUnlockEnabled     = 1 << 1 // bit 1
)

// ParseDeviceSettings decodes the 13-byte GET_SETTINGS payload that
// follows the (command, result) header.
func ParseDeviceSettings(payload []byte) (DeviceSettings, error) {
	if len(payload) < settingsPayloadLen {
		return DeviceSettings{}, ErrShortSettingsPayload
	}

	flags := payload[1]
	autoLockDelay := binary.BigEndian.Uint16(payload[2:4])
	pullSpringDuration := binary.BigEndian.Uint16(payload[4:6])
	postponedLockDelay := binary.BigEndian.Uint16(payload[6:8])
	autoLockImplicitDelay := binary.BigEndian.Uint16(payload[8:10])
	revision := binary.BigEndian.Uint16(payload[10:12])

	return DeviceSettings{
		Revision:                revision,
		AutoLockEnabled:         flags&flagAutoLockEnabled != 0,
		AutoLockImplicitEnabled: flags&flagAutoLockImplicitEnabled != 0,
		PullSpringEnabled:       flags&flagPullSpringEnabled != 0,
		AutoPullSpringEnabled:   flags&flagAutoPullSpringEnabled != 0,
		PostponedLockEnabled:    flags&flagPostponedLockEnabled != 0,
		ButtonLockEnabled:       flags&flagButtonLockEnabled != 0,
		ButtonUnlockEnabled:     flags&flagButtonUnlockEnabled != 0,
		AutoLockDelay:           autoLockDelay,
		PullSpringDuration:      pullSpringDuration,
		PostponedLockDelay:      postponedLockDelay,
		AutoLockImplicitDelay:   autoLockImplicitDelay,
	}, nil
}

// FirmwareVersion is the decoded GET_VERSION response.
type FirmwareVersion struct {
	Major    uint8
	Minor    uint8
	Build    uint16
	Revision uint8
}

// ErrShortVersionPayload indicates a GET_VERSION response shorter than
// the fixed 5-byte payload (major, minor, build-hi, build-lo, revision
// after the header).
var ErrShortVersionPayload = fmt.Errorf("version payload shorter than 5 bytes")

// ParseFirmwareVersion decodes the GET_VERSION payload that follows
// the (command, result) header: major u8, minor u8, build u16 BE,
// revision u8.
func ParseFirmwareVersion(payload []byte) (FirmwareVersion, error) {
	if len(payload) < 5 {
		return FirmwareVersion{}, ErrShortVersionPayload
	}
	return FirmwareVersion{
		Major:    payload[0],
		Minor:    payload[1],
		Build:    binary.BigEndian.Uint16(payload[2:4]),
		Revision: payload[4],
	}, nil
}

// String renders the firmware version the way the lock's companion
// apps display it: major.minor.build, with the trailing revision byte
// discarded from the printed form per §4.6.
func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}
