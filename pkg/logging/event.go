package logging

import (
	"encoding/json"
	"time"
)

// Event is the canonical audit record for actions taken against the
// supervised server.
// Required fields: Timestamp, RunID, Host, EventType, Summary.
type Event struct {
	Timestamp time.Time       `json:"ts"`
	RunID     string          `json:"run_id"`
	Host      string          `json:"host"`
	EventType string          `json:"event_type"`
	Summary   string          `json:"summary"`
	Tags      []string        `json:"tags,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	EventServerStarted  = "server_started"
	EventServerExited   = "server_exited"
	EventLoginSucceeded = "login_succeeded"
	EventLoginFailed    = "login_failed"
	EventLogout         = "logout"
	EventCommandSent    = "command_sent"
	EventStopRequested  = "stop_requested"
	EventKillRequested  = "kill_requested"
	EventStartRequested = "start_requested"
	EventShutdown       = "shutdown"
)

// LoginData is the data payload for login_succeeded, login_failed and logout events.
type LoginData struct {
	Username   string `json:"username,omitempty"`
	RemoteAddr string `json:"remote_addr"`
	// Via is "login" or "start" depending on which credential pair matched.
	Via string `json:"via,omitempty"`
}

// CommandData is the data payload for command_sent events.
type CommandData struct {
	Username   string `json:"username,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Command    string `json:"command"`
	// Source is "web" for console posts and "operator" for local stdin.
	Source string `json:"source"`
}

// ProcessData is the data payload for server_started and server_exited events.
type ProcessData struct {
	PID      int    `json:"pid"`
	Command  string `json:"command,omitempty"`
	ExitCode int    `json:"exit_code"`
	Status   string `json:"status,omitempty"`
}

// ControlData is the data payload for stop, kill, start and shutdown events.
type ControlData struct {
	Username   string `json:"username,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Mode       string `json:"mode"`
	Reason     string `json:"reason,omitempty"`
}
