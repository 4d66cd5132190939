package event

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	ConnectionStateChanged = "connection.stateChanged"
	BackendSwitched        = "backend.switched"
)

// ============================================================================
// Connection Events
// ============================================================================

// ConnectionStateChangedEvent is emitted when the remote transport moves
// between connection states, including asynchronous channel loss.
type ConnectionStateChangedEvent struct {
	State string // "disconnected", "connecting", "authenticating", "connected"
	Host  string // remote host, empty once disconnected
}

func (e ConnectionStateChangedEvent) EventName() string { return ConnectionStateChanged }

// ============================================================================
// Backend Events
// ============================================================================

// BackendSwitchedEvent is emitted when the manager's active backend changes.
type BackendSwitchedEvent struct {
	Active string // "local" or "remote"
}

func (e BackendSwitchedEvent) EventName() string { return BackendSwitched }
