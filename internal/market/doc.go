// Package market implements the Market Session Registry component.
//
// The Session Registry:
//   - Tracks the set of watched instruments and their catalog metadata
//   - Enforces one-way ACTIVE -> ENDED lifecycle transitions
//   - Aggregates the "all ended" signal that drives shutdown and rollover
//   - Notifies the feed manager of additions/removals for resubscription
//
// It is a pure state container. Status changes are driven externally by the
// status poller; the registry never performs I/O.
package market
