package protocol

import (
	"regexp"
	"strings"
)

var serialPattern = regexp.MustCompile(`^[0-9]{8}-[0-9]{6}$`)

// ValidateSerial checks that s has the form NNNNNNNN-NNNNNN.
func ValidateSerial(s string) error {
	if !serialPattern.MatchString(s) {
		return ErrInvalidSerial
	}
	return nil
}

// serialEncodedLen is the number of trailing characters of an
// advertised service UUID that encode the serial (§3). The UUID
// encodes the serial without its separating dash (NNNNNNNN-NNNNNN ->
// 14 characters), which is the only encoding consistent with both the
// NNNNNNNN-NNNNNN serial shape and the fixed 14-character window.
const serialEncodedLen = 14

// SerialFromServiceUUID extracts the serial encoded in the last 14
// characters of an advertised service UUID and reports whether it
// case-insensitively matches want (a NNNNNNNN-NNNNNN serial).
func SerialFromServiceUUID(uuid, want string) (matched bool, encoded string) {
	if len(uuid) < serialEncodedLen {
		return false, ""
	}
	encoded = uuid[len(uuid)-serialEncodedLen:]
	return strings.EqualFold(encoded, strings.ReplaceAll(want, "-", "")), encoded
}
