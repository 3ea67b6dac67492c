// Package database provides connection pool management for the optional
// PostgreSQL event sink.
//
// The monitor runs fine without it; when database.host is set in config,
// change events are mirrored into the change_events table alongside the
// CSV capture.
package database
