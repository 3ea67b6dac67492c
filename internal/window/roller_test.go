package window

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/polysweep/internal/market"
	"github.com/rickgao/polysweep/internal/model"
)

type captureSubscriber struct {
	mu    sync.Mutex
	calls [][]string
}

func (s *captureSubscriber) Resubscribe(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), ids...))
	return nil
}

func (s *captureSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRoller_Lifecycle(t *testing.T) {
	reg := market.NewRegistry(nil)

	var resolveCalls atomic.Int64
	resolver := ResolverFunc(func(ctx context.Context, asset, slug string, start, end time.Time) ([]*model.WatchedInstrument, error) {
		resolveCalls.Add(1)
		return []*model.WatchedInstrument{{
			InstrumentID: "tok-" + asset,
			MarketSlug:   slug,
			Asset:        asset,
			EndTime:      end,
		}}, nil
	})

	sub := &captureSubscriber{}

	var rolled atomic.Int64
	handler := RollHandlerFunc(func(ctx context.Context, ended []*model.WatchedInstrument) error {
		rolled.Add(int64(len(ended)))
		return nil
	})

	cfg := Config{
		Assets:   []string{"btc"},
		Window:   15 * time.Minute,
		RetryMin: 5 * time.Millisecond,
		RetryMax: 20 * time.Millisecond,
		Guard:    10 * time.Millisecond,
	}
	r := New(cfg, reg, resolver, sub, handler, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := r.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	}()

	eventually(t, time.Second, func() bool {
		return len(reg.ActiveInstruments()) == 1
	}, "instrument never registered")
	eventually(t, time.Second, func() bool {
		return r.State() == StateMonitoring
	}, "roller never reached MONITORING")

	if sub.count() != 1 {
		t.Errorf("resubscribe calls = %d, want 1", sub.count())
	}

	inst, ok := reg.Get("tok-btc")
	if !ok {
		t.Fatal("tok-btc not in registry")
	}
	if inst.MarketSlug == "" {
		t.Error("MarketSlug empty, want window slug")
	}

	// End the window: roller should invoke the handler, clear the registry,
	// and register the (same, in this test) window again.
	if err := reg.MarkEnded("tok-btc"); err != nil {
		t.Fatalf("MarkEnded failed: %v", err)
	}
	r.Wake()

	eventually(t, time.Second, func() bool {
		return rolled.Load() == 1
	}, "roll handler never invoked")

	eventually(t, time.Second, func() bool {
		return len(reg.ActiveInstruments()) == 1
	}, "next window never registered")

	if got := resolveCalls.Load(); got < 2 {
		t.Errorf("resolve calls = %d, want >= 2 (one per window)", got)
	}
}

func TestRoller_ResolveRetriesUntilMarketExists(t *testing.T) {
	reg := market.NewRegistry(nil)

	var calls atomic.Int64
	resolver := ResolverFunc(func(ctx context.Context, asset, slug string, start, end time.Time) ([]*model.WatchedInstrument, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("market not created yet")
		}
		return []*model.WatchedInstrument{{InstrumentID: "tok-1", MarketSlug: slug}}, nil
	})

	cfg := Config{
		Assets:   []string{"btc"},
		Window:   15 * time.Minute,
		RetryMin: time.Millisecond,
		RetryMax: 5 * time.Millisecond,
		Guard:    10 * time.Millisecond,
	}
	r := New(cfg, reg, resolver, nil, nil, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	}()

	eventually(t, time.Second, func() bool {
		return len(reg.ActiveInstruments()) == 1
	}, "instrument never registered after retries")

	if got := calls.Load(); got < 3 {
		t.Errorf("resolve calls = %d, want >= 3", got)
	}
}

func TestRoller_StopDuringResolve(t *testing.T) {
	reg := market.NewRegistry(nil)

	resolver := ResolverFunc(func(ctx context.Context, asset, slug string, start, end time.Time) ([]*model.WatchedInstrument, error) {
		return nil, errors.New("permanently failing")
	})

	cfg := Config{
		Assets:   []string{"btc"},
		Window:   15 * time.Minute,
		RetryMin: time.Millisecond,
		RetryMax: 5 * time.Millisecond,
		Guard:    10 * time.Millisecond,
	}
	r := New(cfg, reg, resolver, nil, nil, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Stop must not hang even though resolve never succeeds.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestRoller_DefaultsApplied(t *testing.T) {
	r := New(Config{Assets: []string{"btc"}}, market.NewRegistry(nil), nil, nil, nil, nil)

	if r.cfg.Window != 15*time.Minute {
		t.Errorf("Window = %s, want 15m", r.cfg.Window)
	}
	if r.cfg.RetryMin != time.Second {
		t.Errorf("RetryMin = %s, want 1s", r.cfg.RetryMin)
	}
	if r.cfg.RetryMax != 30*time.Second {
		t.Errorf("RetryMax = %s, want 30s", r.cfg.RetryMax)
	}
	if got := r.State(); got != StateAwaitActive {
		t.Errorf("initial State = %q, want AWAIT_ACTIVE", got)
	}
}
