package wireframe

import (
	"errors"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// ErrEmptyFrame indicates a zero-length inbound frame.
var ErrEmptyFrame = errors.New("empty frame")

// kindMask isolates the low nibble of the header byte.
const kindMask = 0x0F

// counterShift isolates the high nibble (opaque peer-echoed counter).
const counterShift = 4

// Stripped is an inbound frame with its header nibble split out.
type Stripped struct {
	// Kind is the low nibble of the original first byte.
	Kind protocol.FrameKind

	// Counter is the high nibble, recorded only for logging.
	Counter uint8

	// Body is the frame with its first byte rewritten to the
	// nibble-only form (per §4.2: upper layers see a clean first
	// byte, not the raw header with the counter mixed in).
	Body []byte
}

// Strip removes the counter nibble from an inbound frame's header
// byte, returning the frame kind, the counter (for logging only), and
// the frame with its first byte rewritten to contain only the kind.
func Strip(frame []byte) (Stripped, error) {
	if len(frame) == 0 {
		return Stripped{}, ErrEmptyFrame
	}

	header := frame[0]
	kind := protocol.FrameKind(header & kindMask)
	counter := header >> counterShift

	body := make([]byte, len(frame))
	copy(body, frame)
	body[0] = byte(kind)

	return Stripped{Kind: kind, Counter: counter, Body: body}, nil
}

// Build prepends the frame kind byte to payload. Outbound frames carry
// no counter: per §4.2 the framer is not responsible for writing one,
// so the kind occupies the full header byte.
func Build(kind protocol.FrameKind, payload []byte) []byte {
	frame := make([]byte, 1+len(payload))
	frame[0] = byte(kind)
	copy(frame[1:], payload)
	return frame
}
