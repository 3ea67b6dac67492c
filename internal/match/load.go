package match

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/polysweep/internal/model"
)

// LoadSessions reads a session index written by the monitor. Later lines for
// the same session ID supersede earlier ones, so an ended record replaces its
// registration record.
func LoadSessions(path string) ([]*model.SessionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session index: %w", err)
	}
	defer f.Close()

	idx := make(map[uuid.UUID]int)
	var out []*model.SessionRecord

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec model.SessionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("session index line %d: %w", line, err)
		}

		if rec.SessionID != uuid.Nil {
			if j, ok := idx[rec.SessionID]; ok {
				out[j] = &rec
				continue
			}
			idx[rec.SessionID] = len(out)
		}
		out = append(out, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}
	return out, nil
}

// DeriveSessions reconstructs approximate sessions from an event CSV when no
// session index is available. Each (slug, token) pair becomes one session
// whose window spans its first and last events. Derived sessions carry no
// condition ID, so the condition tier cannot fire for them.
func DeriveSessions(path string) ([]*model.SessionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read event csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}
	for _, name := range []string{"timestamp_ms", "instrument_id", "market_slug"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("event csv missing column %q", name)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	type key struct {
		slug       string
		instrument string
	}
	idx := make(map[key]*model.SessionRecord)
	var out []*model.SessionRecord

	for n, row := range rows[1:] {
		ms, err := strconv.ParseInt(field(row, "timestamp_ms"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("event csv row %d: parse timestamp_ms: %w", n+1, err)
		}
		at := time.UnixMilli(ms).UTC()

		k := key{slug: field(row, "market_slug"), instrument: field(row, "instrument_id")}
		s, ok := idx[k]
		if !ok {
			s = &model.SessionRecord{
				SessionID:    uuid.New(),
				InstrumentID: k.instrument,
				MarketSlug:   k.slug,
				WindowStart:  at,
				WindowEnd:    at,
			}
			idx[k] = s
			out = append(out, s)
			continue
		}

		if at.Before(s.WindowStart) {
			s.WindowStart = at
		}
		if at.After(s.WindowEnd) {
			s.WindowEnd = at
		}
	}
	return out, nil
}
