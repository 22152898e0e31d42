package logging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_JSONFieldNames(t *testing.T) {
	event := &Event{
		Timestamp: time.Date(2026, 2, 23, 14, 30, 0, 123000000, time.UTC),
		RunID:     "3b6f0c1e-run",
		Host:      "mc-01",
		EventType: EventLoginSucceeded,
		Summary:   "admin logged in from 10.0.0.4:51234",
	}
	b, err := json.Marshal(event)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))

	assert.Contains(t, m, "ts")
	assert.Contains(t, m, "run_id")
	assert.Contains(t, m, "host")
	assert.Contains(t, m, "event_type")
	assert.Contains(t, m, "summary")
	// Omitempty fields absent
	assert.NotContains(t, m, "tags")
	assert.NotContains(t, m, "data")
}

func TestEvent_OmitemptyPresent(t *testing.T) {
	event := &Event{
		Timestamp: time.Now().UTC(),
		RunID:     "test",
		Host:      "test",
		EventType: EventCommandSent,
		Summary:   "test",
		Tags:      []string{"web"},
		Data:      json.RawMessage(`{"command":"say hi","source":"web"}`),
	}
	b, err := json.Marshal(event)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))

	assert.Contains(t, m, "tags")
	assert.Contains(t, m, "data")
}

func TestEvent_TimestampFormat(t *testing.T) {
	ts := time.Date(2026, 2, 23, 14, 30, 0, 123456789, time.UTC)
	event := &Event{Timestamp: ts, RunID: "r", Host: "h", EventType: "t", Summary: "s"}

	b, err := json.Marshal(event)
	require.NoError(t, err)

	// Verify RFC 3339 with sub-second precision
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	tsStr := m["ts"].(string)
	parsed, err := time.Parse(time.RFC3339Nano, tsStr)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ts))
}

func TestProcessData_ExitCodeNotOmitted(t *testing.T) {
	b, err := json.Marshal(&ProcessData{PID: 42})
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Contains(t, m, "exit_code", "exit_code must be present even when zero")
	assert.NotContains(t, m, "status")
}

func TestLoginData_RemoteAddrNotOmitted(t *testing.T) {
	b, err := json.Marshal(&LoginData{})
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Contains(t, m, "remote_addr")
	assert.NotContains(t, m, "username")
}

func TestEventTypeConstants(t *testing.T) {
	assert.Equal(t, "server_started", EventServerStarted)
	assert.Equal(t, "server_exited", EventServerExited)
	assert.Equal(t, "login_succeeded", EventLoginSucceeded)
	assert.Equal(t, "login_failed", EventLoginFailed)
	assert.Equal(t, "command_sent", EventCommandSent)
	assert.Equal(t, "shutdown", EventShutdown)
}
