// Package poller implements the market status poller.
//
// The status poller:
//   - Checks the Gamma catalog every 60 seconds for watched markets
//   - Treats ended or closed flags as the only end-of-market authority
//   - Groups instruments by slug so one market costs one request
//   - Uses concurrent requests with bounded fan-out
//   - Reports ended markets (and their winning tokens) to a StatusHandler
package poller
