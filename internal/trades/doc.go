// Package trades fetches wallet trade history from the Polymarket Data API
// and persists it as CSV for reconciliation.
//
// The Data API paginates /trades by offset with no cursor; the client walks
// pages until a short page and spaces requests to respect rate limits. Wire
// values arrive loosely typed (numbers as strings, timestamps in two
// encodings), so decoding is tolerant and conversion to model.TradeRecord
// normalizes everything once.
package trades
