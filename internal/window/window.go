package window

import (
	"strconv"
	"time"
)

// CurrentWindow floors now to the most recent multiple of d on the Unix
// epoch timeline. The result is in UTC with second precision.
func CurrentWindow(now time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return now.UTC().Truncate(time.Second)
	}
	secs := int64(d / time.Second)
	unix := now.Unix()
	return time.Unix(unix-unix%secs, 0).UTC()
}

// SlugFor builds the market slug for a window: {asset}-{minutes}m-{start}.
// For (btc, 15m, 1707523200) it returns "btc-15m-1707523200".
func SlugFor(asset string, d time.Duration, start time.Time) string {
	minutes := int64(d / time.Minute)
	return asset + "-" + strconv.FormatInt(minutes, 10) + "m-" + strconv.FormatInt(start.Unix(), 10)
}
