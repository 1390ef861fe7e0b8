package log

import (
	"time"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	LayerTransport  Layer = 0
	LayerWireframe  Layer = 1
	LayerSession    Layer = 2
	LayerCommandMux Layer = 3
	LayerSupervisor Layer = 4
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWireframe:
		return "WIREFRAME"
	case LayerSession:
		return "SESSION"
	case LayerCommandMux:
		return "COMMAND_MUX"
	case LayerSupervisor:
		return "SUPERVISOR"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryFrame       Category = 0
	CategoryMessage     Category = 1
	CategoryStateChange Category = 2
	CategoryAlert       Category = 3
	CategoryError       Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryMessage:
		return "MESSAGE"
	case CategoryStateChange:
		return "STATE_CHANGE"
	case CategoryAlert:
		return "ALERT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event represents a protocol log event captured at any layer. CBOR
// encoding uses integer keys for compactness, matching the wire
// protocol's own parsimony.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Alert       *AlertEvent       `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"14,keyasint,omitempty"`
}

// MaxLogFrameDataSize truncates large frame payloads before they are
// logged, to avoid excessive memory use when capturing long sessions.
const MaxLogFrameDataSize = 4096

// FrameEvent captures a raw or header-stripped frame.
type FrameEvent struct {
	Kind      protocol.FrameKind `cbor:"1,keyasint"`
	Size      int                `cbor:"2,keyasint"`
	Data      []byte             `cbor:"3,keyasint"`
	Truncated bool               `cbor:"4,keyasint"`
}

// MessageEvent captures a decoded (command, payload) dispatch.
type MessageEvent struct {
	Command      protocol.Command          `cbor:"1,keyasint"`
	Notification *protocol.NotificationType `cbor:"2,keyasint,omitempty"`
	Result       *protocol.ResultCode      `cbor:"3,keyasint,omitempty"`
	PayloadSize  int                        `cbor:"4,keyasint"`
}

// StateChangeEvent captures a supervisor or session state transition.
type StateChangeEvent struct {
	Entity   string `cbor:"1,keyasint"`
	OldState string `cbor:"2,keyasint"`
	NewState string `cbor:"3,keyasint"`
	Reason   string `cbor:"4,keyasint,omitempty"`
}

// AlertEvent captures an inbound ALERT frame.
type AlertEvent struct {
	Code protocol.AlertCode `cbor:"1,keyasint"`
}

// ErrorEvent captures an error surfaced at any layer.
type ErrorEvent struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Context string `cbor:"3,keyasint,omitempty"`
}
