package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/polysweep/internal/catalog"
	"github.com/rickgao/polysweep/internal/model"
)

// stubSource returns a fixed instrument list.
type stubSource struct {
	insts []*model.WatchedInstrument
}

func (s *stubSource) Active() []*model.WatchedInstrument {
	return s.insts
}

// statusRecorder captures handler calls.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []MarketStatus
}

func (r *statusRecorder) HandleStatus(s MarketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
	return nil
}

func (r *statusRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func (r *statusRecorder) get(i int) MarketStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[i]
}

func watched(id, slug string) *model.WatchedInstrument {
	return &model.WatchedInstrument{
		InstrumentID: id,
		MarketSlug:   slug,
		Status:       model.StatusActive,
	}
}

func testClient(url string) *catalog.Client {
	return catalog.NewClient(url,
		catalog.WithTimeout(5*time.Second),
		catalog.WithRetries(0, time.Millisecond),
	)
}

func endedEventJSON(slug string) map[string]any {
	return map[string]any{
		"id":     "evt-1",
		"slug":   slug,
		"ended":  true,
		"closed": true,
		"markets": []map[string]any{{
			"slug":          slug,
			"conditionId":   "0xabc",
			"ended":         true,
			"closed":        true,
			"outcomes":      `["Up","Down"]`,
			"outcomePrices": `["1","0"]`,
			"clobTokenIds":  `["tok-up","tok-down"]`,
		}},
	}
}

func TestPoller_ReportsEndedMarket(t *testing.T) {
	const slug = "btc-updown-15m-1707522600"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(endedEventJSON(slug))
	}))
	defer server.Close()

	source := &stubSource{insts: []*model.WatchedInstrument{
		watched("tok-up", slug),
		watched("tok-down", slug),
	}}
	recorder := &statusRecorder{}

	cfg := Config{
		Interval:    time.Hour, // Long interval, we'll trigger manually.
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}
	p := New(cfg, testClient(server.URL), source, recorder, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	if recorder.count() != 1 {
		t.Fatalf("handler calls = %d, want 1", recorder.count())
	}

	status := recorder.get(0)
	if status.Slug != slug {
		t.Errorf("Slug = %s, want %s", status.Slug, slug)
	}
	if want := []string{"tok-down", "tok-up"}; !reflect.DeepEqual(status.EndedTokens, want) {
		t.Errorf("EndedTokens = %v, want %v", status.EndedTokens, want)
	}
	if want := []string{"tok-up"}; !reflect.DeepEqual(status.Winners, want) {
		t.Errorf("Winners = %v, want %v", status.Winners, want)
	}
	if len(status.Instruments) != 2 {
		t.Errorf("Instruments = %d, want 2", len(status.Instruments))
	}
}

func TestPoller_ActiveMarketNotReported(t *testing.T) {
	const slug = "btc-updown-15m-1707522600"

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		resp := endedEventJSON(slug)
		resp["ended"] = false
		resp["closed"] = false
		resp["markets"].([]map[string]any)[0]["ended"] = false
		resp["markets"].([]map[string]any)[0]["closed"] = false
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	// Two tokens on one slug cost one request.
	source := &stubSource{insts: []*model.WatchedInstrument{
		watched("tok-up", slug),
		watched("tok-down", slug),
	}}
	recorder := &statusRecorder{}

	p := New(Config{Interval: time.Hour, Concurrency: 10, Timeout: 5 * time.Second},
		testClient(server.URL), source, recorder, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	if recorder.count() != 0 {
		t.Errorf("handler calls = %d, want 0 for a live market", recorder.count())
	}
	if hits.Load() != 1 {
		t.Errorf("catalog requests = %d, want 1 (grouped by slug)", hits.Load())
	}
}

func TestPoller_MarketSlugFallback(t *testing.T) {
	const slug = "will-btc-close-above-100k"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/events/slug/"+slug:
			http.Error(w, "not found", http.StatusNotFound)
		case r.URL.Path == "/markets/slug/"+slug:
			json.NewEncoder(w).Encode(map[string]any{
				"slug":          slug,
				"conditionId":   "0xdef",
				"ended":         false,
				"closed":        true,
				"outcomes":      `["Yes","No"]`,
				"outcomePrices": `["0","1"]`,
				"clobTokenIds":  `["tok-yes","tok-no"]`,
			})
		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	source := &stubSource{insts: []*model.WatchedInstrument{watched("tok-no", slug)}}
	recorder := &statusRecorder{}

	p := New(Config{Interval: time.Hour, Concurrency: 10, Timeout: 5 * time.Second},
		testClient(server.URL), source, recorder, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	if recorder.count() != 1 {
		t.Fatalf("handler calls = %d, want 1", recorder.count())
	}
	status := recorder.get(0)
	if want := []string{"tok-no"}; !reflect.DeepEqual(status.EndedTokens, want) {
		t.Errorf("EndedTokens = %v, want %v", status.EndedTokens, want)
	}
	if want := []string{"tok-no"}; !reflect.DeepEqual(status.Winners, want) {
		t.Errorf("Winners = %v, want %v", status.Winners, want)
	}
}

func TestPoller_StartStop(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"slug":    "live-market",
			"ended":   false,
			"closed":  false,
			"markets": []map[string]any{},
		})
	}))
	defer server.Close()

	source := &stubSource{insts: []*model.WatchedInstrument{watched("tok-1", "live-market")}}

	cfg := Config{
		Interval:    50 * time.Millisecond,
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}
	p := New(cfg, testClient(server.URL), source, &statusRecorder{}, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least one poll.
	time.Sleep(80 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if hits.Load() == 0 {
		t.Error("catalog was never polled")
	}
}

func TestPoller_Concurrency(t *testing.T) {
	var inFlight atomic.Int32
	var maxInFlight atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		// Track max concurrent requests.
		for {
			old := maxInFlight.Load()
			if current <= old || maxInFlight.CompareAndSwap(old, current) {
				break
			}
		}

		// Simulate some work.
		time.Sleep(50 * time.Millisecond)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ended":   false,
			"closed":  false,
			"markets": []map[string]any{},
		})
	}))
	defer server.Close()

	// 20 instruments on 20 distinct slugs.
	var insts []*model.WatchedInstrument
	for i := 0; i < 20; i++ {
		suffix := string(rune('a' + i))
		insts = append(insts, watched("tok-"+suffix, "market-"+suffix))
	}
	source := &stubSource{insts: insts}

	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 5, // Limit to 5 concurrent.
		Timeout:     5 * time.Second,
	}
	p := New(cfg, testClient(server.URL), source, &statusRecorder{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	if got := maxInFlight.Load(); got > 5 {
		t.Errorf("maxInFlight = %d, want <= 5", got)
	}
}

func TestPollerDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Interval != 60*time.Second {
		t.Errorf("Interval = %v, want 60s", cfg.Interval)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
}
