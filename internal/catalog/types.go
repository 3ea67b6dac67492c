package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event from GET /events/slug/{slug}
type Event struct {
	ID      string   `json:"id"`
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	EndDate string   `json:"endDate"`
	Ended   bool     `json:"ended"`
	Closed  bool     `json:"closed"`
	Markets []Market `json:"markets"`
}

// Market represents a market from the Gamma API.
type Market struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`

	// Timestamps (ISO 8601)
	EndDate string `json:"endDate"`

	// Lifecycle flags
	Active bool `json:"active"`
	Closed bool `json:"closed"`
	Ended  bool `json:"ended"`

	// List-valued fields with flexible encodings
	Outcomes      FlexStrings `json:"outcomes"`
	OutcomePrices FlexStrings `json:"outcomePrices"`
	ClobTokenIDs  FlexStrings `json:"clobTokenIds"`
}

// IsEnded reports whether the market has ended or resolved.
func (m *Market) IsEnded() bool {
	return m.Ended || m.Closed
}

// TokenIDs returns the market's CLOB token IDs, trimmed non-empty.
func (m *Market) TokenIDs() []string {
	out := make([]string, 0, len(m.ClobTokenIDs))
	for _, id := range m.ClobTokenIDs {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// OutcomePriceFloats parses the outcome prices. Returns nil when any entry
// is unparseable so indexes stay aligned with TokenIDs.
func (m *Market) OutcomePriceFloats() []float64 {
	out := make([]float64, 0, len(m.OutcomePrices))
	for _, raw := range m.OutcomePrices {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

// WinningTokenID returns the token whose outcome price resolved to ~1.
// Resolved markets report outcomePrices like "1,0"; the 0.99 floor allows
// for float precision.
func (m *Market) WinningTokenID() (string, bool) {
	tokens := m.TokenIDs()
	prices := m.OutcomePriceFloats()
	if len(tokens) == 0 || len(tokens) != len(prices) {
		return "", false
	}
	for i, p := range prices {
		if p >= 0.99 {
			return tokens[i], true
		}
	}
	return "", false
}

// EndTime parses the market's end date. Zero time for empty or invalid input.
func (m *Market) EndTime() time.Time {
	return parseTimestamp(m.EndDate)
}

// EndTime parses the event's end date. Zero time for empty or invalid input.
func (e *Event) EndTime() time.Time {
	return parseTimestamp(e.EndDate)
}

func parseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// FlexStrings is a string list tolerating the Gamma API's encodings: a JSON
// array, a JSON string wrapping an array ("[\"a\",\"b\"]"), and a
// separator-joined scalar ("a|b" or "a,b").
type FlexStrings []string

func (fs *FlexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*fs = nil
		return nil
	}

	if b[0] == '[' {
		var vals []string
		if err := json.Unmarshal(b, &vals); err != nil {
			return err
		}
		*fs = vals
		return nil
	}

	if b[0] != '"' {
		return fmt.Errorf("flex strings: unsupported value %s", b)
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*fs = nil
		return nil
	}

	if s[0] == '[' {
		var vals []string
		if err := json.Unmarshal([]byte(s), &vals); err == nil {
			*fs = vals
			return nil
		}
	}

	sep := ","
	if strings.Contains(s, "|") {
		sep = "|"
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*fs = out
	return nil
}
