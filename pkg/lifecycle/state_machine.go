package lifecycle

// StateMachine enforces credit status transitions. Transitions are
// one-directional: a credit never returns to an earlier status, and
// "retired" is terminal.
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine with the credit lifecycle
// transitions: issued -> owned -> retired, plus direct retirement of
// an unsold credit by its producer.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			"issued":  {"owned", "retired"},
			"owned":   {"retired"},
			"retired": {},
		},
	}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}
