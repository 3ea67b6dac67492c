package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Instruments & Sessions
// -----------------------------------------------------------------------------

// InstrumentStatus is the lifecycle state of a watched instrument.
// Transitions are one-way: ACTIVE -> ENDED, never back.
type InstrumentStatus string

const (
	StatusActive InstrumentStatus = "ACTIVE"
	StatusEnded  InstrumentStatus = "ENDED"
)

// WatchedInstrument identifies one tradable token under observation.
// Created when a market is resolved from a slug; its status is mutated only
// by the status poller; never reused after ENDED.
type WatchedInstrument struct {
	SessionID    uuid.UUID // Assigned at registration, unique per watch session
	InstrumentID string    // CLOB token ID (asset_id on the wire)
	MarketSlug   string    // Market slug the token belongs to
	ConditionID  string    // On-chain condition identifier for the market
	Outcome      string    // Outcome label for this token ("Yes"/"No"/"Up"/...)
	Asset        string    // Underlying asset for windowed markets ("btc", ...), empty otherwise
	EndTime      time.Time // Scheduled market end, zero if unknown
	Status       InstrumentStatus
	RegisteredAt time.Time // When the registry accepted this instrument
	EndedAt      time.Time // When the poller observed ENDED, zero while active
}

// Active reports whether the instrument is still being watched.
func (w *WatchedInstrument) Active() bool { return w.Status == StatusActive }

// SessionRecord is one line of the session index (JSONL). It is the durable
// trace of a watch session that the reconciliation matcher reads back.
type SessionRecord struct {
	SessionID    uuid.UUID `json:"session_id"`
	InstrumentID string    `json:"instrument_id"`
	MarketSlug   string    `json:"market_slug"`
	ConditionID  string    `json:"condition_id,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	Asset        string    `json:"asset,omitempty"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	RegisteredAt time.Time `json:"registered_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
	Winning      bool      `json:"winning,omitempty"` // true if this token resolved as the winner
}

// -----------------------------------------------------------------------------
// Order-Book Types
// -----------------------------------------------------------------------------

// Side distinguishes bid interest from ask interest at a price level.
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// PriceLevelKey identifies one tracked price level. Side is part of the
// identity: the same numeric price can hold independent bid and ask interest,
// and merging them corrupts delta computation.
type PriceLevelKey struct {
	InstrumentID string
	Price        float64
	Side         Side
}

// PriceLevelState is the last known size at a price level.
type PriceLevelState struct {
	Key      PriceLevelKey
	LastSize float64
}

// BookContext is the best bid/ask known for an instrument at the moment an
// update batch is processed. Recomputed per batch, never persisted.
type BookContext struct {
	BestBid float64
	BestAsk float64
	HasBid  bool // false when the batch carried no usable best bid
	HasAsk  bool // false when the batch carried no usable best ask
}

// ChangeEvent is the unit written to the durable event stream. Immutable once
// emitted. Emitted only when the price is within tolerance of the target and
// the size delta against the prior state for the exact (instrument, price,
// side) key is non-zero.
type ChangeEvent struct {
	TimestampMS  int64  // Receive time, ms since epoch
	TimestampISO string // Same instant, RFC 3339
	InstrumentID string // CLOB token ID
	MarketSlug   string
	Price        float64
	Side         Side
	Size         float64 // Size now resting at the level
	SizeDelta    float64 // Change against the prior observation (full size on first sighting)
	BestBid      float64
	BestAsk      float64
}

// -----------------------------------------------------------------------------
// Reconciliation Types
// -----------------------------------------------------------------------------

// TradeRecord is one executed trade fetched from the Data API, the external
// input to the matcher.
type TradeRecord struct {
	ID              string    // Data API trade ID
	Wallet          string    // Proxy wallet address
	InstrumentID    string    // CLOB token ID traded
	ConditionID     string    // On-chain condition identifier
	MarketSlug      string    // Event slug as reported by the Data API
	Outcome         string    // Outcome label bought/sold
	TradeSide       string    // "BUY" or "SELL"
	Price           float64   // Execution price per share
	Size            float64   // Shares
	USDCValue       float64   // Price * Size
	ExecutedAt      time.Time // Execution timestamp
	TransactionHash string
}

// MatchTier orders match confidence from strongest to weakest.
type MatchTier string

const (
	TierConditionID MatchTier = "CONDITION_ID" // same on-chain market instance
	TierExact       MatchTier = "EXACT"        // same slug and same token
	TierSlugOnly    MatchTier = "SLUG_ONLY"    // same recurring slot, window stripped
	TierNone        MatchTier = "NONE"
)

// MatchResult pairs a trade with the session it reconciled to, if any.
// Session is nil iff Tier is NONE.
type MatchResult struct {
	Trade   TradeRecord
	Session *SessionRecord
	Tier    MatchTier
}
