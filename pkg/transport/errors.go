package transport

import "errors"

// Errors surfaced by scanning and connection setup (§4.1, §7).
var (
	// ErrScanThrottled indicates the platform's BLE stack is
	// rate-limiting scan starts. Retries after 15s (§4.1).
	ErrScanThrottled = errors.New("ble scan throttled")

	// ErrCharacteristicNotFound indicates GATT service discovery
	// didn't find an expected characteristic. Retries after 15s.
	ErrCharacteristicNotFound = errors.New("characteristic not found")

	// ErrDeviceNotFound indicates a scan for a specific serial timed
	// out without a match (§4.1).
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPermissionDenied, ErrInvalidCertificate, ErrNoTrustedTime and
	// ErrDeviceNotInitialized must never trigger a connection retry
	// (§4.1, §7): they indicate a condition retrying cannot fix.
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidCertificate   = errors.New("invalid certificate")
	ErrNoTrustedTime        = errors.New("missing trusted time")
	ErrDeviceNotInitialized = errors.New("device not initialized")
)

// nonRetryable lists the errors that must abort connection setup
// immediately rather than being retried (§4.1).
var nonRetryable = []error{
	ErrPermissionDenied,
	ErrInvalidCertificate,
	ErrNoTrustedTime,
	ErrDeviceNotInitialized,
}

// IsRetryable reports whether err should trigger a connection-setup
// retry rather than an immediate failure.
func IsRetryable(err error) bool {
	for _, nr := range nonRetryable {
		if errors.Is(err, nr) {
			return false
		}
	}
	return true
}
