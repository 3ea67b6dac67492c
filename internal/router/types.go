package router

// Config holds configuration for the router.
type Config struct {
	BufferSize int // Output buffer capacity. Default: 4096
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 4096,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived int64
	LevelsInspected  int64
	EventsEmitted    int64
	ParseErrors      int64
	UnknownMessages  int64
	InactiveDropped  int64
	Buffer           BufferStats
}

// Wire types for JSON parsing

// bookWire is the wire format for full order book snapshots:
//
//	{
//	  "event_type": "book",
//	  "asset_id": "6553...",
//	  "market": "0xbb4...",
//	  "bids": [{"price": ".48", "size": "30"}, ...],
//	  "asks": [{"price": ".52", "size": "25"}, ...],
//	  "timestamp": "123456789000"
//	}
type bookWire struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Bids      []levelWire `json:"bids"`
	Asks      []levelWire `json:"asks"`
	Timestamp FlexInt64   `json:"timestamp"`
}

// levelWire is one price level in a book snapshot.
type levelWire struct {
	Price FlexFloat `json:"price"`
	Size  FlexFloat `json:"size"`
}

// priceChangeWire is the wire format for level change batches:
//
//	{
//	  "event_type": "price_change",
//	  "market": "0xbb4...",
//	  "price_changes": [{"asset_id": "...", "price": "0.999", ...}, ...],
//	  "timestamp": "123456789000"
//	}
type priceChangeWire struct {
	EventType    string           `json:"event_type"`
	Market       string           `json:"market"`
	Timestamp    FlexInt64        `json:"timestamp"`
	PriceChanges []priceDeltaWire `json:"price_changes"`
}

// priceDeltaWire is one entry of a price_change batch. Side here is the
// exchange's order side, not the classified book side; classification runs
// off price against best_bid/best_ask.
type priceDeltaWire struct {
	AssetID string    `json:"asset_id"`
	Price   FlexFloat `json:"price"`
	Size    FlexFloat `json:"size"`
	Side    string    `json:"side"`
	BestBid FlexFloat `json:"best_bid"`
	BestAsk FlexFloat `json:"best_ask"`
}

// messageEnvelope is used for fast type extraction. The feed labels messages
// with event_type but some control frames use type instead.
type messageEnvelope struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
}

func (e messageEnvelope) kind() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.Type
}
