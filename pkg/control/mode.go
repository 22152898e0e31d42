package control

// Mode is the top-level state of the control loop.
type Mode int

const (
	// ModeIdle means no server process is alive.
	ModeIdle Mode = iota
	// ModeRunning means exactly one server process is alive.
	ModeRunning
	// ModeShuttingDown is terminal; Run returns once it is reached.
	ModeShuttingDown
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRunning:
		return "running"
	case ModeShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}
