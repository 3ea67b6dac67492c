package poller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/polysweep/internal/catalog"
	"github.com/rickgao/polysweep/internal/model"
)

// InstrumentSource provides the instruments whose markets get polled.
// market.Registry satisfies this.
type InstrumentSource interface {
	Active() []*model.WatchedInstrument
}

// MarketStatus is the poll result for one registered slug. The poller only
// reports slugs where at least one watched instrument's market has ended.
type MarketStatus struct {
	Slug string

	// Instruments are the watched instruments grouped under this slug.
	Instruments []*model.WatchedInstrument

	// EndedTokens are the instrument ids whose market has ended or closed.
	EndedTokens []string

	// Winners are the instrument ids whose outcome resolved to ~1.
	Winners []string
}

// StatusHandler receives poll results for markets that have ended.
type StatusHandler interface {
	HandleStatus(status MarketStatus) error
}

// StatusHandlerFunc is a function adapter for StatusHandler.
type StatusHandlerFunc func(MarketStatus) error

func (f StatusHandlerFunc) HandleStatus(s MarketStatus) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 60s)
	Concurrency int           // Max concurrent requests (default: 8)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    60 * time.Second,
		Concurrency: 8,
		Timeout:     10 * time.Second,
	}
}

// Poller periodically checks watched markets against the Gamma catalog and
// reports the ones that have ended. The end-time heuristics stay out of it:
// the catalog's ended/closed flags are the only authority.
type Poller struct {
	cfg     Config
	client  *catalog.Client
	source  InstrumentSource
	handler StatusHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, client *catalog.Client, source InstrumentSource, handler StatusHandler, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		source:  source,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("status poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("status poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll checks every watched slug concurrently. Instruments sharing a slug
// cost one request, not one per token.
func (p *Poller) pollAll() {
	start := time.Now()

	groups := groupBySlug(p.source.Active())
	if len(groups) == 0 {
		p.logger.Debug("no active instruments to poll")
		return
	}

	slugs := make([]string, 0, len(groups))
	for slug := range groups {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var checked, ended, errs atomic.Int64

	for _, slug := range slugs {
		wg.Add(1)
		go func(slug string, insts []*model.WatchedInstrument) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			hadEnded, err := p.pollSlug(slug, insts)
			if err != nil {
				p.logger.Warn("failed to poll market status",
					"slug", slug,
					"error", err,
				)
				errs.Add(1)
				return
			}

			checked.Add(1)
			if hadEnded {
				ended.Add(1)
			}
		}(slug, groups[slug])
	}

	wg.Wait()

	p.logger.Info("status poll cycle complete",
		"slugs", len(groups),
		"checked", checked.Load(),
		"ended", ended.Load(),
		"errors", errs.Load(),
		"duration", time.Since(start),
	)
}

// pollSlug fetches one slug's status and notifies the handler when any of its
// watched instruments' markets have ended.
func (p *Poller) pollSlug(slug string, insts []*model.WatchedInstrument) (bool, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	status, err := p.fetchStatus(ctx, slug, insts)
	if err != nil {
		return false, err
	}

	if len(status.EndedTokens) == 0 {
		return false, nil
	}

	if p.handler != nil {
		if err := p.handler.HandleStatus(status); err != nil {
			return true, err
		}
	}
	return true, nil
}

// fetchStatus resolves a slug through the catalog. Slugs register from event
// lookups, so events are tried first; a slug that only exists as a market
// falls back to the market endpoint.
func (p *Poller) fetchStatus(ctx context.Context, slug string, insts []*model.WatchedInstrument) (MarketStatus, error) {
	ev, err := p.client.EventBySlug(ctx, slug)
	if err == nil {
		return buildStatus(slug, insts, ev.Markets, ev.Ended || ev.Closed), nil
	}

	var apiErr *catalog.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		return MarketStatus{}, err
	}

	m, err := p.client.MarketBySlug(ctx, slug)
	if err != nil {
		return MarketStatus{}, err
	}
	return buildStatus(slug, insts, []catalog.Market{*m}, false), nil
}

// buildStatus maps catalog markets onto the watched instruments. When the
// whole event has ended, every watched token counts as ended even if its
// market dropped out of the response.
func buildStatus(slug string, insts []*model.WatchedInstrument, markets []catalog.Market, eventEnded bool) MarketStatus {
	status := MarketStatus{Slug: slug, Instruments: insts}

	watched := make(map[string]struct{}, len(insts))
	for _, inst := range insts {
		watched[inst.InstrumentID] = struct{}{}
	}

	endedSet := make(map[string]struct{})
	for i := range markets {
		m := &markets[i]
		if eventEnded || m.IsEnded() {
			for _, tok := range m.TokenIDs() {
				if _, ok := watched[tok]; ok {
					endedSet[tok] = struct{}{}
				}
			}
			if winner, ok := m.WinningTokenID(); ok {
				if _, watchedWinner := watched[winner]; watchedWinner {
					status.Winners = append(status.Winners, winner)
				}
			}
		}
	}

	if eventEnded {
		for id := range watched {
			endedSet[id] = struct{}{}
		}
	}

	for id := range endedSet {
		status.EndedTokens = append(status.EndedTokens, id)
	}
	sort.Strings(status.EndedTokens)
	sort.Strings(status.Winners)

	return status
}

// groupBySlug buckets instruments by their registration slug.
func groupBySlug(insts []*model.WatchedInstrument) map[string][]*model.WatchedInstrument {
	groups := make(map[string][]*model.WatchedInstrument)
	for _, inst := range insts {
		if inst.MarketSlug == "" {
			continue
		}
		groups[inst.MarketSlug] = append(groups[inst.MarketSlug], inst)
	}
	return groups
}
