package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jingkaihe/gameward/internal/errx"
)

// JSONLWriter appends one JSON object per line to an audit file. The file
// records usernames and remote addresses, so it is created owner-only.
type JSONLWriter struct {
	mu   sync.Mutex
	file *os.File
}

// NewJSONLWriter opens path for appending, creating it and its parent
// directories as needed.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errx.Wrap(ErrCreateLogFile, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errx.Wrap(ErrCreateLogFile, err)
	}
	return &JSONLWriter{file: f}, nil
}

// Write appends event as a single line. The line goes out in one write so
// concurrent gameward processes sharing the file never interleave.
func (w *JSONLWriter) Write(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return errx.Wrap(ErrWriteEvent, err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return errx.With(ErrWriteEvent, ": writer closed")
	}
	if _, err := w.file.Write(line); err != nil {
		return errx.Wrap(ErrWriteEvent, err)
	}
	return nil
}

// Close syncs and closes the file. Calling it again is a no-op.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	_ = f.Sync()
	if err := f.Close(); err != nil {
		return errx.Wrap(ErrCloseWriter, err)
	}
	return nil
}
