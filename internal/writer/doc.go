// Package writer persists change events and session records.
//
// Writers:
//   - Event CSV writer (append-only capture file, flushed per row)
//   - Session JSONL writer (one record at registration, one at market end)
//   - Event Postgres sink (batched inserts into change_events, optional)
//
// All writers use append-only semantics (never update, only insert).
// The Postgres sink deduplicates replayed frames through its
// (instrument_id, timestamp_ms, price, side) conflict key. Expected table:
//
//	CREATE TABLE change_events (
//	    timestamp_ms  BIGINT           NOT NULL,
//	    price         DOUBLE PRECISION NOT NULL,
//	    size          DOUBLE PRECISION NOT NULL,
//	    size_change   DOUBLE PRECISION NOT NULL,
//	    side          TEXT             NOT NULL,
//	    best_bid      DOUBLE PRECISION NOT NULL,
//	    best_ask      DOUBLE PRECISION NOT NULL,
//	    instrument_id TEXT             NOT NULL,
//	    market_slug   TEXT             NOT NULL,
//	    UNIQUE (instrument_id, timestamp_ms, price, side)
//	);
package writer
