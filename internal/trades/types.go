package trades

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/polysweep/internal/model"
)

// wireTrade is one trade object as returned by GET /trades. The API is loose
// about encodings: price and size arrive as numbers or strings, timestamps as
// unix seconds or ISO strings, and the slug under several keys.
type wireTrade struct {
	ID              flexString `json:"id"`
	ProxyWallet     string     `json:"proxyWallet"`
	Side            string     `json:"side"`
	Asset           string     `json:"asset"`
	ConditionID     string     `json:"conditionId"`
	Outcome         string     `json:"outcome"`
	Price           flexFloat  `json:"price"`
	Size            flexFloat  `json:"size"`
	MatchTime       flexTime   `json:"matchTime"`
	Timestamp       flexTime   `json:"timestamp"`
	CreatedAt       flexTime   `json:"createdAt"`
	MarketSlug      string     `json:"market_slug"`
	Slug            string     `json:"slug"`
	EventSlug       string     `json:"eventSlug"`
	TransactionHash string     `json:"transactionHash"`
}

// record converts the wire trade to a TradeRecord. The wallet argument is the
// canonical address the fetch was issued for; the API echoes it in mixed
// casings, so the caller's form wins.
func (t *wireTrade) record(wallet string) (model.TradeRecord, error) {
	at := t.MatchTime.Time
	if at.IsZero() {
		at = t.Timestamp.Time
	}
	if at.IsZero() {
		at = t.CreatedAt.Time
	}
	if at.IsZero() {
		return model.TradeRecord{}, errors.New("trade has no usable timestamp")
	}

	price := t.Price.Float64()
	size := t.Size.Float64()

	slug := t.MarketSlug
	if slug == "" {
		slug = t.Slug
	}
	if slug == "" {
		slug = t.EventSlug
	}

	return model.TradeRecord{
		ID:              string(t.ID),
		Wallet:          wallet,
		InstrumentID:    t.Asset,
		ConditionID:     t.ConditionID,
		MarketSlug:      slug,
		Outcome:         t.Outcome,
		TradeSide:       t.Side,
		Price:           price,
		Size:            size,
		USDCValue:       math.Round(price*size*1e6) / 1e6,
		ExecutedAt:      at.UTC(),
		TransactionHash: t.TransactionHash,
	}, nil
}

// flexFloat decodes a JSON number that may arrive quoted.
type flexFloat float64

// Float64 returns the plain value.
func (f flexFloat) Float64() float64 { return float64(f) }

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse float %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexString decodes a JSON value that should be a string but may arrive as
// a bare number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

// flexTime decodes a timestamp that may arrive as unix seconds (number or
// numeric string) or as an RFC 3339 string. Absent and null decode to zero.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			t.Time = parsed
			return nil
		}
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		t.Time = time.Unix(sec, 0)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	t.Time = time.Unix(int64(v), 0)
	return nil
}
