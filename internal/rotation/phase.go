package rotation

import "sync"

// Phase is the lifecycle state of the credential manager.
type Phase string

// Lifecycle phases.
const (
	PhaseUninitialized      Phase = "Uninitialized"
	PhaseWaitingForProvider Phase = "WaitingForProvider"
	PhaseBootstrapping      Phase = "Bootstrapping"
	PhaseReady              Phase = "Ready"
	PhaseRotating           Phase = "Rotating"
	// PhaseUnhealthy is terminal until the process restarts.
	PhaseUnhealthy Phase = "Unhealthy"
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{
	PhaseUninitialized,
	PhaseWaitingForProvider,
	PhaseBootstrapping,
	PhaseReady,
	PhaseRotating,
	PhaseUnhealthy,
}

// allowedTransitions defines valid state transitions for the manager.
var allowedTransitions = map[Phase]map[Phase]struct{}{
	PhaseUninitialized: {
		PhaseWaitingForProvider: {},
	},
	PhaseWaitingForProvider: {
		PhaseBootstrapping: {},
		PhaseUnhealthy:     {},
	},
	PhaseBootstrapping: {
		PhaseReady:     {},
		PhaseUnhealthy: {},
	},
	PhaseReady: {
		PhaseRotating: {},
	},
	PhaseRotating: {
		PhaseReady: {},
	},
	PhaseUnhealthy: {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Phase) bool {
	if from == to {
		return true
	}
	_, ok := allowedTransitions[from][to]
	return ok
}

type phaseMachine struct {
	mu       sync.RWMutex
	current  Phase
	onChange func(Phase)
}

func newPhaseMachine(initial Phase, onChange func(Phase)) *phaseMachine {
	return &phaseMachine{
		current:  initial,
		onChange: onChange,
	}
}

// Transition attempts to move the machine to the requested phase, enforcing allowed transitions.
func (pm *phaseMachine) Transition(next Phase) bool {
	pm.mu.Lock()
	if !CanTransition(pm.current, next) {
		pm.mu.Unlock()
		return false
	}
	changed := pm.current != next
	pm.current = next
	pm.mu.Unlock()

	if changed && pm.onChange != nil {
		pm.onChange(next)
	}
	return true
}

// Current returns the currently tracked phase.
func (pm *phaseMachine) Current() Phase {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.current
}
