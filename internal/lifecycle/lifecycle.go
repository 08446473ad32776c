package lifecycle

import "sync/atomic"

// Phase is the process lifecycle phase reported by /health.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseReady
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhaseDraining:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// SetPhase records the current phase. Call SetPhase(PhaseReady) once favorites
// are loaded and the listener is up, and PhaseDraining on SIGTERM/SIGINT.
func SetPhase(p Phase) {
	phase.Store(int32(p))
}

// CurrentPhase returns the current lifecycle phase.
func CurrentPhase() Phase {
	return Phase(phase.Load())
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return CurrentPhase() == PhaseDraining
}
