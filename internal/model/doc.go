// Package model defines shared data types used across polysweep.
//
// Conventions:
//   - Prices and sizes: float64 in outcome-share units ($0.00-$1.00 per share)
//   - Event timestamps: int64 milliseconds since Unix epoch plus an ISO-8601 echo
//   - IDs: string for instrument and condition identifiers, uuid.UUID for
//     monitoring-session IDs
package model
