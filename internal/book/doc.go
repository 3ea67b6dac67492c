// Package book implements the change-detection engine.
//
// The engine:
//   - Tracks last known size per (instrument, price, side) level
//   - Computes size deltas and suppresses no-op repeats
//   - Classifies arbitrary prices as bid or ask from best bid/ask context
//   - Emits ChangeEvents for non-zero deltas within tolerance of the target price
//
// Side is part of a level's identity. Bid and ask interest at the same
// numeric price are tracked as distinct entities.
package book
