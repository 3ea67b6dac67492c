package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/polysweep/internal/model"
)

func TestSessionJSONL_AppendsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	w := NewSessionJSONL(path)
	if w == nil {
		t.Fatal("NewSessionJSONL returned nil for a real path")
	}
	defer w.Close()

	id := uuid.New()
	start := time.Date(2024, 2, 10, 0, 30, 0, 0, time.UTC)

	registered := model.SessionRecord{
		SessionID:    id,
		InstrumentID: "tok-1",
		MarketSlug:   "btc-updown-15m-1707522600",
		ConditionID:  "0xabc",
		Outcome:      "Up",
		Asset:        "btc",
		WindowStart:  start,
		WindowEnd:    start.Add(15 * time.Minute),
		RegisteredAt: start.Add(2 * time.Second),
	}
	if err := w.Write(registered); err != nil {
		t.Fatalf("Write registration failed: %v", err)
	}

	ended := registered
	ended.EndedAt = start.Add(16 * time.Minute)
	ended.Winning = true
	if err := w.Write(ended); err != nil {
		t.Fatalf("Write ended failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	// Readers keep the last record per session id; the last line is the
	// ended state.
	var last model.SessionRecord
	if err := json.Unmarshal([]byte(lines[1]), &last); err != nil {
		t.Fatalf("unmarshal last line: %v", err)
	}
	if last.SessionID != id {
		t.Errorf("SessionID = %s, want %s", last.SessionID, id)
	}
	if !last.Winning {
		t.Error("Winning = false, want true on ended record")
	}
	if last.EndedAt.IsZero() {
		t.Error("EndedAt is zero on ended record")
	}

	var first model.SessionRecord
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if !first.EndedAt.IsZero() {
		t.Error("EndedAt set on registration record")
	}
}

func TestSessionJSONL_BlankPathDisables(t *testing.T) {
	if w := NewSessionJSONL(""); w != nil {
		t.Error("NewSessionJSONL(\"\") should return nil")
	}
	if w := NewSessionJSONL("   "); w != nil {
		t.Error("NewSessionJSONL(blank) should return nil")
	}

	// Nil writer accepts and discards.
	var w *SessionJSONL
	if err := w.Write(model.SessionRecord{}); err != nil {
		t.Errorf("nil writer Write = %v, want nil", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("nil writer Close = %v, want nil", err)
	}
}

func TestSessionJSONL_LazyOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.jsonl")
	w := NewSessionJSONL(path)
	defer w.Close()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file exists before first write: %v", err)
	}

	if err := w.Write(model.SessionRecord{SessionID: uuid.New()}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("stat after write: %v", err)
	}
}
