package window

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/polysweep/internal/market"
	"github.com/rickgao/polysweep/internal/model"
)

// State describes the roller's position in the window lifecycle.
type State string

const (
	// StateAwaitActive means the roller is resolving the current window's
	// markets, retrying until they exist.
	StateAwaitActive State = "AWAIT_ACTIVE"
	// StateMonitoring means the window's instruments are registered and
	// the roller is waiting for all of them to end.
	StateMonitoring State = "MONITORING"
	// StateRolling means the window has fully ended and the roller is
	// transitioning to the next one.
	StateRolling State = "ROLLING"
)

// Resolver resolves a window slug into the instruments to watch.
// Implementations retry transient failures themselves only if they want to;
// the roller already retries with backoff, so returning the error is fine.
type Resolver interface {
	ResolveWindow(ctx context.Context, asset, slug string, start, end time.Time) ([]*model.WatchedInstrument, error)
}

// ResolverFunc is a function adapter for Resolver.
type ResolverFunc func(ctx context.Context, asset, slug string, start, end time.Time) ([]*model.WatchedInstrument, error)

func (f ResolverFunc) ResolveWindow(ctx context.Context, asset, slug string, start, end time.Time) ([]*model.WatchedInstrument, error) {
	return f(ctx, asset, slug, start, end)
}

// Subscriber points the live feed at a new instrument set.
type Subscriber interface {
	Resubscribe(instrumentIDs []string) error
}

// RollHandler observes window transitions. HandleRoll receives the ended
// instruments just before the registry is cleared for the next window.
type RollHandler interface {
	HandleRoll(ctx context.Context, ended []*model.WatchedInstrument) error
}

// RollHandlerFunc is a function adapter for RollHandler.
type RollHandlerFunc func(ctx context.Context, ended []*model.WatchedInstrument) error

func (f RollHandlerFunc) HandleRoll(ctx context.Context, ended []*model.WatchedInstrument) error {
	return f(ctx, ended)
}

// Config holds roller configuration.
type Config struct {
	Assets   []string      // asset stems to monitor, e.g. ["btc", "eth"]
	Window   time.Duration // window duration (default: 15m)
	RetryMin time.Duration // resolve backoff floor (default: 1s)
	RetryMax time.Duration // resolve backoff cap (default: 30s)
	Guard    time.Duration // all-ended recheck cadence (default: 15s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:   15 * time.Minute,
		RetryMin: 1 * time.Second,
		RetryMax: 30 * time.Second,
		Guard:    15 * time.Second,
	}
}

// Roller drives continuous monitoring: resolve the current window, register
// its instruments, wait for every one to end, clear, repeat. It never stops
// on its own; only context cancellation ends the loop.
type Roller struct {
	cfg      Config
	registry market.Registry
	resolver Resolver
	sub      Subscriber
	handler  RollHandler
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	wake  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Roller. The subscriber and handler may be nil.
func New(cfg Config, registry market.Registry, resolver Resolver, sub Subscriber, handler RollHandler, logger *slog.Logger) *Roller {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = DefaultConfig().RetryMin
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = DefaultConfig().RetryMax
	}
	if cfg.Guard <= 0 {
		cfg.Guard = DefaultConfig().Guard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Roller{
		cfg:      cfg,
		registry: registry,
		resolver: resolver,
		sub:      sub,
		handler:  handler,
		logger:   logger,
		state:    StateAwaitActive,
		wake:     make(chan struct{}, 1),
	}
}

// State returns the roller's current lifecycle state.
func (r *Roller) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Roller) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Wake nudges the roller to recheck whether the window has fully ended.
// Safe to call from any goroutine; redundant wakes coalesce.
func (r *Roller) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start begins the roll loop.
func (r *Roller) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("window roller started",
		"assets", r.cfg.Assets,
		"window", r.cfg.Window,
	)

	return nil
}

// Stop gracefully shuts down the roller.
func (r *Roller) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("window roller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main roll loop.
func (r *Roller) run() {
	defer r.wg.Done()

	for {
		if r.ctx.Err() != nil {
			return
		}

		r.setState(StateAwaitActive)
		insts, start, ok := r.resolveCurrentWindow()
		if !ok {
			return
		}

		registered := 0
		for _, inst := range insts {
			if err := r.registry.Register(inst); err != nil {
				r.logger.Warn("failed to register instrument",
					"instrument_id", inst.InstrumentID,
					"market_slug", inst.MarketSlug,
					"error", err,
				)
				continue
			}
			registered++
		}

		if r.sub != nil {
			if err := r.sub.Resubscribe(r.registry.ActiveInstruments()); err != nil {
				r.logger.Warn("failed to resubscribe feed", "error", err)
			}
		}

		r.logger.Info("window active",
			"window_start", start.Unix(),
			"window_end", start.Add(r.cfg.Window).Unix(),
			"instruments", registered,
		)

		r.setState(StateMonitoring)
		if !r.awaitAllEnded() {
			return
		}

		r.setState(StateRolling)
		ended := r.registry.All()
		if r.handler != nil {
			if err := r.handler.HandleRoll(r.ctx, ended); err != nil {
				r.logger.Warn("roll handler failed", "error", err)
			}
		}
		r.registry.Reset()

		r.logger.Info("window rolled",
			"window_start", start.Unix(),
			"instruments", len(ended),
		)
	}
}

// resolveCurrentWindow resolves every asset's market for the window covering
// now, retrying with bounded backoff until the markets exist. A window that
// rolls over while resolving is discarded and recomputed.
func (r *Roller) resolveCurrentWindow() ([]*model.WatchedInstrument, time.Time, bool) {
	backoff := r.cfg.RetryMin

	for {
		if r.ctx.Err() != nil {
			return nil, time.Time{}, false
		}

		start := CurrentWindow(time.Now(), r.cfg.Window)
		end := start.Add(r.cfg.Window)

		insts, err := r.resolveAssets(start, end)
		if err == nil {
			// Discard the result if the window advanced while resolving.
			if !CurrentWindow(time.Now(), r.cfg.Window).Equal(start) {
				r.logger.Info("window advanced during resolve, retrying",
					"stale_window", start.Unix(),
				)
				backoff = r.cfg.RetryMin
				continue
			}
			return insts, start, true
		}

		r.logger.Warn("window resolve failed, backing off",
			"window_start", start.Unix(),
			"backoff", backoff,
			"error", err,
		)

		if !sleepContext(r.ctx, backoff) {
			return nil, time.Time{}, false
		}
		backoff *= 2
		if backoff > r.cfg.RetryMax {
			backoff = r.cfg.RetryMax
		}
	}
}

func (r *Roller) resolveAssets(start, end time.Time) ([]*model.WatchedInstrument, error) {
	insts := make([]*model.WatchedInstrument, 0, len(r.cfg.Assets)*2)
	for _, asset := range r.cfg.Assets {
		slug := SlugFor(asset, r.cfg.Window, start)
		got, err := r.resolver.ResolveWindow(r.ctx, asset, slug, start, end)
		if err != nil {
			return nil, err
		}
		insts = append(insts, got...)
	}
	return insts, nil
}

// awaitAllEnded blocks until every registered instrument has ended. The poll
// loop wakes the roller explicitly; the guard ticker covers missed wakes.
func (r *Roller) awaitAllEnded() bool {
	ticker := time.NewTicker(r.cfg.Guard)
	defer ticker.Stop()

	for {
		if r.registry.AllEnded() {
			return true
		}
		select {
		case <-r.ctx.Done():
			return false
		case <-r.wake:
		case <-ticker.C:
		}
	}
}

// sleepContext sleeps for d unless the context is cancelled first.
// Returns false on cancellation.
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
