// Package window provides rolling-window math and the roller that drives
// continuous monitoring across consecutive market windows.
//
// Windowed markets recur on a fixed cadence (e.g. every 15 minutes) with
// slugs of the form {asset}-{minutes}m-{window_start_unix}. The roller
// resolves the current window's markets, registers them, and rolls to the
// next window once every registered instrument has ended.
package window
