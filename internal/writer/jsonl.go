package writer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rickgao/polysweep/internal/model"
)

// SessionJSONL appends session records to a newline-delimited JSON file.
//
// A session is written once at registration and once again when the market
// ends; readers keep the last record per session id. The file opens lazily
// on first write, so a monitor configured without a sessions path never
// touches the filesystem.
//
// Safe for concurrent use.
type SessionJSONL struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// NewSessionJSONL returns a writer that appends to path. An empty or blank
// path returns nil; the nil writer accepts and discards records.
func NewSessionJSONL(path string) *SessionJSONL {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &SessionJSONL{path: path}
}

func (w *SessionJSONL) ensureOpenLocked() error {
	if w.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	w.file = f
	w.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// Write appends rec as a single JSON object followed by '\n'.
// It flushes the buffered writer to make the record visible to tailers.
func (w *SessionJSONL) Write(rec model.SessionRecord) error {
	if w == nil {
		return nil
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpenLocked(); err != nil {
		return err
	}

	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes any buffered data and closes the underlying file.
func (w *SessionJSONL) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.w != nil {
		if err := w.w.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.w = nil
	w.file = nil

	if firstErr != nil && errors.Is(firstErr, os.ErrClosed) {
		return nil
	}
	return firstErr
}
