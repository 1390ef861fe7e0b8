package supervisor

// Phase is the supervisor's top-level state.
type Phase uint8

const (
	PhaseDisconnected Phase = iota
	PhaseScanning
	PhaseLinking
	PhaseHandshaking
	PhaseRefreshingTime
	PhaseReady
	PhaseReadyUnsecure
	PhaseClosed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "DISCONNECTED"
	case PhaseScanning:
		return "SCANNING"
	case PhaseLinking:
		return "LINKING"
	case PhaseHandshaking:
		return "HANDSHAKING"
	case PhaseRefreshingTime:
		return "REFRESHING_TIME"
	case PhaseReady:
		return "READY"
	case PhaseReadyUnsecure:
		return "READY_UNSECURE"
	case PhaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// IsReady reports whether the supervisor can accept LockApi requests
// in this phase.
func (p Phase) IsReady() bool {
	return p == PhaseReady || p == PhaseReadyUnsecure
}
