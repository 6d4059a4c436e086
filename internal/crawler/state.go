package crawler

// State is a step of the engine lifecycle.
type State string

const (
	// StateIdle is the state before Run or Resume.
	StateIdle State = "idle"
	// StateRunning means URLs are being dispatched.
	StateRunning State = "running"
	// StateDraining means the caller canceled the session.
	StateDraining State = "draining"
	// StateTimedOut means the session timeout elapsed.
	StateTimedOut State = "timed_out"
	// StateExhausted means the page budget was spent or nothing was left.
	StateExhausted State = "exhausted"
	// StateStopped is the final state.
	StateStopped State = "stopped"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	switch s {
	case StateDraining, StateTimedOut, StateExhausted, StateStopped:
		return true
	default:
		return false
	}
}
