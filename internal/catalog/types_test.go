package catalog

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestFlexStrings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"json array", `["111","222"]`, []string{"111", "222"}},
		{"string-wrapped array", `"[\"111\", \"222\"]"`, []string{"111", "222"}},
		{"pipe separated", `"111|222"`, []string{"111", "222"}},
		{"comma separated", `"Up, Down"`, []string{"Up", "Down"}},
		{"single scalar", `"111"`, []string{"111"}},
		{"null", `null`, nil},
		{"empty string", `""`, nil},
		{"empty array", `[]`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fs FlexStrings
			if err := json.Unmarshal([]byte(tt.in), &fs); err != nil {
				t.Fatalf("unmarshal %q failed: %v", tt.in, err)
			}
			if !reflect.DeepEqual([]string(fs), tt.want) {
				t.Errorf("FlexStrings(%q) = %v, want %v", tt.in, []string(fs), tt.want)
			}
		})
	}
}

func TestFlexStrings_Invalid(t *testing.T) {
	var fs FlexStrings
	if err := json.Unmarshal([]byte(`42`), &fs); err == nil {
		t.Error("expected error for numeric value")
	}
}

func TestMarketIsEnded(t *testing.T) {
	tests := []struct {
		name   string
		market Market
		want   bool
	}{
		{"active", Market{Active: true}, false},
		{"ended flag", Market{Ended: true}, true},
		{"closed flag", Market{Closed: true}, true},
		{"both flags", Market{Ended: true, Closed: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.market.IsEnded(); got != tt.want {
				t.Errorf("IsEnded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWinningTokenID(t *testing.T) {
	tests := []struct {
		name   string
		market Market
		want   string
		wantOK bool
	}{
		{
			name: "first outcome wins",
			market: Market{
				ClobTokenIDs:  FlexStrings{"111", "222"},
				OutcomePrices: FlexStrings{"1", "0"},
			},
			want:   "111",
			wantOK: true,
		},
		{
			name: "second outcome wins",
			market: Market{
				ClobTokenIDs:  FlexStrings{"111", "222"},
				OutcomePrices: FlexStrings{"0", "1"},
			},
			want:   "222",
			wantOK: true,
		},
		{
			name: "float precision tolerated",
			market: Market{
				ClobTokenIDs:  FlexStrings{"111", "222"},
				OutcomePrices: FlexStrings{"0.995", "0.005"},
			},
			want:   "111",
			wantOK: true,
		},
		{
			name: "unresolved",
			market: Market{
				ClobTokenIDs:  FlexStrings{"111", "222"},
				OutcomePrices: FlexStrings{"0.55", "0.45"},
			},
			wantOK: false,
		},
		{
			name: "length mismatch",
			market: Market{
				ClobTokenIDs:  FlexStrings{"111", "222"},
				OutcomePrices: FlexStrings{"1"},
			},
			wantOK: false,
		},
		{
			name: "unparseable price",
			market: Market{
				ClobTokenIDs:  FlexStrings{"111", "222"},
				OutcomePrices: FlexStrings{"1", "n/a"},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.market.WinningTokenID()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("WinningTokenID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarketEndTime(t *testing.T) {
	m := Market{EndDate: "2024-02-09T23:45:00Z"}
	want := time.Date(2024, 2, 9, 23, 45, 0, 0, time.UTC)
	if got := m.EndTime(); !got.Equal(want) {
		t.Errorf("EndTime() = %v, want %v", got, want)
	}

	if got := (&Market{}).EndTime(); !got.IsZero() {
		t.Errorf("EndTime() for empty date = %v, want zero", got)
	}
	if got := (&Market{EndDate: "garbage"}).EndTime(); !got.IsZero() {
		t.Errorf("EndTime() for invalid date = %v, want zero", got)
	}
}

func TestInstruments(t *testing.T) {
	ev := &Event{
		Slug:    "btc-15m-1707522600",
		EndDate: "2024-02-09T23:45:00Z",
		Markets: []Market{{
			Slug:         "btc-15m-1707522600",
			ConditionID:  "0xfacecafe",
			EndDate:      "2024-02-09T23:45:00Z",
			Outcomes:     FlexStrings{"Up", "Down"},
			ClobTokenIDs: FlexStrings{"111", "222"},
		}},
	}

	insts, err := Instruments(ev, "btc")
	if err != nil {
		t.Fatalf("Instruments failed: %v", err)
	}
	if len(insts) != 2 {
		t.Fatalf("len(insts) = %d, want 2", len(insts))
	}

	first := insts[0]
	if first.InstrumentID != "111" {
		t.Errorf("InstrumentID = %q, want 111", first.InstrumentID)
	}
	if first.MarketSlug != "btc-15m-1707522600" {
		t.Errorf("MarketSlug = %q, want btc-15m-1707522600", first.MarketSlug)
	}
	if first.ConditionID != "0xfacecafe" {
		t.Errorf("ConditionID = %q, want 0xfacecafe", first.ConditionID)
	}
	if first.Outcome != "Up" {
		t.Errorf("Outcome = %q, want Up", first.Outcome)
	}
	if first.Asset != "btc" {
		t.Errorf("Asset = %q, want btc", first.Asset)
	}
	if first.EndTime.IsZero() {
		t.Error("EndTime is zero, want parsed end date")
	}
	if insts[1].Outcome != "Down" {
		t.Errorf("second Outcome = %q, want Down", insts[1].Outcome)
	}
}

func TestInstruments_Errors(t *testing.T) {
	if _, err := Instruments(&Event{}, "btc"); !errors.Is(err, ErrNoMarkets) {
		t.Errorf("err = %v, want ErrNoMarkets", err)
	}

	ev := &Event{Markets: []Market{{Slug: "x"}}}
	if _, err := Instruments(ev, "btc"); !errors.Is(err, ErrNoTokens) {
		t.Errorf("err = %v, want ErrNoTokens", err)
	}
}
