package logging

import (
	"encoding/json"
	"time"

	"github.com/jingkaihe/gameward/internal/errx"
)

// EmitterConfig holds the static metadata configured at startup.
// All fields are stamped onto every event automatically.
type EmitterConfig struct {
	RunID string // One per gameward invocation
	Host  string // os.Hostname() unless overridden
}

// Emitter provides convenience methods for emitting typed events.
// It holds static metadata and dispatches to one or more sinks.
//
// A nil *Emitter is safe to use; Emit and Close are no-ops on it.
type Emitter struct {
	config EmitterConfig
	sinks  []Sink
	now    func() time.Time
}

// NewEmitter creates an emitter with the given configuration and sinks.
func NewEmitter(cfg EmitterConfig, sinks ...Sink) *Emitter {
	return &Emitter{
		config: cfg,
		sinks:  sinks,
		now:    time.Now,
	}
}

// Emit constructs an event with the emitter's static metadata and writes
// it to all registered sinks.
//
// Parameters:
//   - eventType: one of the Event* constants (e.g., EventLoginSucceeded)
//   - summary: human-readable one-line summary
//   - tags: optional tags for filtering (nil is fine)
//   - data: the typed data struct (e.g., *LoginData); nil for no payload
//
// Returns the first error encountered. Callers treat emission as best-effort.
func (e *Emitter) Emit(eventType, summary string, tags []string, data interface{}) error {
	if e == nil {
		return nil
	}
	var rawData json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return errx.Wrap(ErrMarshalData, err)
		}
		rawData = b
	}

	event := &Event{
		Timestamp: e.now().UTC(),
		RunID:     e.config.RunID,
		Host:      e.config.Host,
		EventType: eventType,
		Summary:   summary,
		Tags:      tags,
		Data:      rawData,
	}

	for _, sink := range e.sinks {
		if err := sink.Write(event); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all sinks. Returns the first error encountered.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	var firstErr error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
