package logging

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSink(t *testing.T, path string) *SQLiteSink {
	t.Helper()
	sink, err := OpenSQLiteSink(context.Background(), path)
	require.NoError(t, err)
	return sink
}

func TestSQLiteSink_WriteAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	sink := openTestSink(t, path)
	defer sink.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Write(&Event{
		Timestamp: base, RunID: "r1", Host: "h", EventType: EventServerStarted, Summary: "started",
		Data: json.RawMessage(`{"pid":7,"exit_code":0}`),
	}))
	require.NoError(t, sink.Write(&Event{
		Timestamp: base.Add(time.Second), RunID: "r1", Host: "h", EventType: EventLoginSucceeded, Summary: "login",
		Tags: []string{"login"},
	}))

	events, err := sink.Query(context.Background(), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventLoginSucceeded, events[0].EventType, "newest first")
	assert.Equal(t, []string{"login"}, events[0].Tags)
	assert.Nil(t, events[0].Data)
	assert.True(t, events[1].Timestamp.Equal(base))
	assert.JSONEq(t, `{"pid":7,"exit_code":0}`, string(events[1].Data))
}

func TestSQLiteSink_QueryFilters(t *testing.T) {
	sink := openTestSink(t, filepath.Join(t.TempDir(), "events.db"))
	defer sink.Close()

	now := time.Now().UTC()
	for i, typ := range []string{EventCommandSent, EventCommandSent, EventLogout, EventCommandSent} {
		run := "r1"
		if i == 3 {
			run = "r2"
		}
		require.NoError(t, sink.Write(&Event{
			Timestamp: now.Add(time.Duration(i) * time.Millisecond), RunID: run, Host: "h", EventType: typ, Summary: "s",
		}))
	}

	events, err := sink.Query(context.Background(), QueryOptions{EventType: EventCommandSent})
	require.NoError(t, err)
	assert.Len(t, events, 3)

	events, err = sink.Query(context.Background(), QueryOptions{EventType: EventCommandSent, RunID: "r1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "r1", events[0].RunID)
}

func TestSQLiteSink_ReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")
	sink := openTestSink(t, path)
	require.NoError(t, sink.Write(testEvent("persisted")))
	require.NoError(t, sink.Close())

	sink = openTestSink(t, path)
	defer sink.Close()
	events, err := sink.Query(context.Background(), QueryOptions{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "persisted", events[0].Summary)
}

func TestSQLiteSink_WithEmitter(t *testing.T) {
	sink := openTestSink(t, filepath.Join(t.TempDir(), "events.db"))
	emitter := NewEmitter(EmitterConfig{RunID: "run-9", Host: "mc-01"}, sink)

	require.NoError(t, emitter.Emit(EventKillRequested, "kill requested by admin", nil, &ControlData{Username: "admin", Mode: "running"}))

	events, err := sink.Query(context.Background(), QueryOptions{RunID: "run-9"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "mc-01", events[0].Host)

	var data ControlData
	require.NoError(t, json.Unmarshal(events[0].Data, &data))
	assert.Equal(t, "admin", data.Username)
	require.NoError(t, emitter.Close())
}
