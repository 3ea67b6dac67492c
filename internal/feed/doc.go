// Package feed implements the market data feed connection.
//
// The feed manager:
//   - Maintains one WebSocket connection to the Polymarket market channel
//   - Multiplexes every watched instrument over a single subscription
//   - Handles reconnection with exponential backoff
//   - Replays the current active instrument set after each reconnect
package feed
