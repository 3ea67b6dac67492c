// Package metrics aggregates component stats for the /stats endpoint.
//
// Key stats:
//   - WebSocket connection state and message rates
//   - Router throughput, parse errors, and buffer utilization
//   - Writer flush counts and row totals
//   - Registry size and window roller state
package metrics
