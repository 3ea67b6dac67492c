package window

import (
	"testing"
	"time"
)

func TestCurrentWindow(t *testing.T) {
	tests := []struct {
		name string
		now  int64
		d    time.Duration
		want int64
	}{
		{"mid window", 1707523267, 15 * time.Minute, 1707523200},
		{"exact boundary", 1707523200, 15 * time.Minute, 1707523200},
		{"one second before roll", 1707524099, 15 * time.Minute, 1707523200},
		{"first second of next window", 1707524100, 15 * time.Minute, 1707524100},
		{"hourly window", 1707523267, time.Hour, 1707523200},
		{"one minute window", 1707523267, time.Minute, 1707523260},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CurrentWindow(time.Unix(tt.now, 0), tt.d)
			if got.Unix() != tt.want {
				t.Errorf("CurrentWindow(%d, %s) = %d, want %d", tt.now, tt.d, got.Unix(), tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestCurrentWindow_IgnoresWallClockZone(t *testing.T) {
	loc := time.FixedZone("ET", -5*3600)
	now := time.Unix(1707523267, 0).In(loc)

	got := CurrentWindow(now, 15*time.Minute)
	if got.Unix() != 1707523200 {
		t.Errorf("CurrentWindow in ET zone = %d, want 1707523200", got.Unix())
	}
}

func TestSlugFor(t *testing.T) {
	tests := []struct {
		name  string
		asset string
		d     time.Duration
		start int64
		want  string
	}{
		{"btc 15m", "btc", 15 * time.Minute, 1707523200, "btc-15m-1707523200"},
		{"eth hourly", "eth", time.Hour, 1707523200, "eth-60m-1707523200"},
		{"sol 5m", "sol", 5 * time.Minute, 1707523500, "sol-5m-1707523500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SlugFor(tt.asset, tt.d, time.Unix(tt.start, 0))
			if got != tt.want {
				t.Errorf("SlugFor(%s, %s, %d) = %q, want %q", tt.asset, tt.d, tt.start, got, tt.want)
			}
		})
	}
}

func TestSlugForMatchesCurrentWindow(t *testing.T) {
	// The slug's timestamp must be the floored window start, never raw now.
	now := time.Unix(1707523267, 0)
	start := CurrentWindow(now, 15*time.Minute)

	got := SlugFor("btc", 15*time.Minute, start)
	if got != "btc-15m-1707523200" {
		t.Errorf("slug = %q, want btc-15m-1707523200", got)
	}
}
