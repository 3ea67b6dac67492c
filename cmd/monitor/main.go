package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/polysweep/internal/book"
	"github.com/rickgao/polysweep/internal/catalog"
	"github.com/rickgao/polysweep/internal/config"
	"github.com/rickgao/polysweep/internal/database"
	"github.com/rickgao/polysweep/internal/feed"
	"github.com/rickgao/polysweep/internal/market"
	"github.com/rickgao/polysweep/internal/metrics"
	"github.com/rickgao/polysweep/internal/model"
	"github.com/rickgao/polysweep/internal/poller"
	"github.com/rickgao/polysweep/internal/router"
	"github.com/rickgao/polysweep/internal/version"
	"github.com/rickgao/polysweep/internal/window"
	"github.com/rickgao/polysweep/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/monitor.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "config", *configPath, "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	mode := "finite"
	if cfg.Watch.Continuous {
		mode = "continuous"
	}
	logger.Info("configuration loaded",
		"mode", mode,
		"feed_url", cfg.Feed.URL,
		"catalog_url", cfg.Catalog.URL,
		"target", cfg.Target.Price,
		"tolerance", cfg.Target.Tolerance,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create catalog client
	catalogClient := catalog.NewClient(
		cfg.Catalog.URL,
		catalog.WithLogger(logger),
		catalog.WithTimeout(cfg.Catalog.Timeout),
		catalog.WithRetries(cfg.Catalog.MaxRetries, time.Second),
	)

	// Connect to database (optional event sink)
	var pool *pgxpool.Pool
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("database connected")
	}

	// Core components
	registry := market.NewRegistry(logger)
	detector := book.NewDetector(cfg.Target.Price, cfg.Target.Tolerance)

	// Output writers
	eventCSV, err := writer.NewEventCSV(cfg.Output.EventsCSV, logger)
	if err != nil {
		logger.Error("failed to open events csv", "error", err)
		os.Exit(1)
	}
	sessionLog := writer.NewSessionJSONL(cfg.Output.SessionsJSONL)

	// Feed manager and router
	mgr := feed.NewManager(feed.ManagerConfig{
		URL:          cfg.Feed.URL,
		PingTimeout:  cfg.Feed.ReadTimeout,
		ReconnectMin: cfg.Feed.ReconnectMin,
		ReconnectMax: cfg.Feed.ReconnectMax,
		BufferSize:   cfg.Output.BufferSize,
	}, registry, logger)

	rtr := router.NewRouter(
		router.Config{BufferSize: cfg.Output.BufferSize},
		mgr.Messages(),
		detector,
		registry,
		logger,
	)

	// Optional Postgres sink fed from a second buffer; the drain goroutine
	// below fans events out to it after the CSV write.
	var (
		pgBuf   *router.Buffer[model.ChangeEvent]
		eventPG *writer.EventPG
	)
	if pool != nil {
		pgBuf = router.NewBuffer[model.ChangeEvent](cfg.Output.BufferSize)
		eventPG = writer.NewEventPG(writer.Config{
			BatchSize:     cfg.Output.BatchSize,
			FlushInterval: cfg.Output.FlushInterval,
		}, pgBuf, pool, logger)
	}

	// Drain change events: every event lands in the CSV, and in the
	// Postgres buffer when the sink is enabled.
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		events := rtr.Events()
		for {
			ev, ok := events.Receive()
			if !ok {
				if pgBuf != nil {
					pgBuf.Close()
				}
				return
			}
			if err := eventCSV.Write(ev); err != nil {
				logger.Error("failed to write event row", "error", err)
			}
			if pgBuf != nil {
				pgBuf.Send(ev)
			}
		}
	}()

	// Record registrations in the session index as they happen.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ch := <-registry.Changes():
				if ch.Type != market.ChangeRegistered {
					continue
				}
				inst, ok := registry.Get(ch.InstrumentID)
				if !ok {
					continue
				}
				if err := sessionLog.Write(sessionRecord(inst)); err != nil {
					logger.Warn("failed to write session record",
						"instrument_id", ch.InstrumentID,
						"error", err,
					)
				}
			}
		}
	}()

	// The roller exists only in continuous mode; the status handler wakes it
	// when a window has fully ended.
	var roller *window.Roller

	statusHandler := poller.StatusHandlerFunc(func(status poller.MarketStatus) error {
		winners := make(map[string]bool, len(status.Winners))
		for _, id := range status.Winners {
			winners[id] = true
		}

		for _, id := range status.EndedTokens {
			if err := registry.MarkEnded(id); err != nil {
				logger.Warn("failed to mark instrument ended",
					"instrument_id", id,
					"error", err,
				)
				continue
			}
			detector.Cache.PurgeInstrument(id)

			if inst, ok := registry.Get(id); ok {
				rec := sessionRecord(inst)
				rec.Winning = winners[id]
				if err := sessionLog.Write(rec); err != nil {
					logger.Warn("failed to write session record",
						"instrument_id", id,
						"error", err,
					)
				}
			}
		}

		if registry.AllEnded() {
			if roller != nil {
				roller.Wake()
			} else {
				logger.Info("all watched markets ended")
				cancel()
			}
		}
		return nil
	})

	if cfg.Watch.Continuous {
		resolver := window.ResolverFunc(func(ctx context.Context, asset, slug string, start, end time.Time) ([]*model.WatchedInstrument, error) {
			insts, err := resolveInstruments(ctx, catalogClient, slug, asset)
			if err != nil {
				return nil, err
			}
			for _, inst := range insts {
				if inst.EndTime.IsZero() {
					inst.EndTime = end
				}
			}
			return insts, nil
		})

		rollHandler := window.RollHandlerFunc(func(ctx context.Context, ended []*model.WatchedInstrument) error {
			for _, inst := range ended {
				detector.Cache.PurgeInstrument(inst.InstrumentID)
			}
			return nil
		})

		roller = window.New(window.Config{
			Assets: cfg.Watch.Assets,
			Window: cfg.Watch.Window,
		}, registry, resolver, mgr, rollHandler, logger)
	} else {
		// Finite mode: resolve the named markets up front so the feed
		// subscribes them on connect.
		for _, slug := range cfg.Watch.Slugs {
			insts, err := resolveInstruments(ctx, catalogClient, slug, "")
			if err != nil {
				logger.Error("failed to resolve market", "slug", slug, "error", err)
				os.Exit(1)
			}
			for _, inst := range insts {
				if err := registry.Register(inst); err != nil {
					logger.Warn("failed to register instrument",
						"instrument_id", inst.InstrumentID,
						"error", err,
					)
				}
			}
			logger.Info("watching market", "slug", slug, "instruments", len(insts))
		}
	}

	statusPoller := poller.New(poller.Config{
		Interval: cfg.Watch.PollInterval,
		Timeout:  cfg.Catalog.Timeout,
	}, catalogClient, registry, statusHandler, logger)

	// Stats collector for the /stats endpoint
	collector := metrics.NewCollector()
	collector.Register("feed", func() any { return mgr.Stats() })
	collector.Register("router", func() any { return rtr.Stats() })
	collector.Register("events_csv", func() any {
		return map[string]any{"rows": eventCSV.Rows()}
	})
	collector.Register("registry", func() any {
		return map[string]any{
			"active":    len(registry.ActiveInstruments()),
			"all_ended": registry.AllEnded(),
		}
	})
	if eventPG != nil {
		collector.Register("events_pg", func() any { return eventPG.Stats() })
	}
	if roller != nil {
		collector.Register("roller", func() any { return string(roller.State()) })
	}

	// Start health server early so startup progress is observable
	healthServer := &http.Server{
		Addr:    cfg.Health.Addr,
		Handler: createHealthHandler(registry, mgr, pool, collector),
	}
	go func() {
		logger.Info("starting health server", "addr", cfg.Health.Addr)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start components
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start feed manager", "error", err)
		os.Exit(1)
	}
	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}
	if eventPG != nil {
		// The sink outlives the run context: its consume loop must keep
		// draining pgBuf until the drain goroutine has handed over the last
		// event, or a full buffer would wedge shutdown. Stop ends it.
		if err := eventPG.Start(context.Background()); err != nil {
			logger.Error("failed to start event sink", "error", err)
			os.Exit(1)
		}
	}
	if err := statusPoller.Start(ctx); err != nil {
		logger.Error("failed to start status poller", "error", err)
		os.Exit(1)
	}
	if roller != nil {
		if err := roller.Start(ctx); err != nil {
			logger.Error("failed to start window roller", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("monitor running",
		"mode", mode,
		"health_addr", cfg.Health.Addr,
		"events_csv", cfg.Output.EventsCSV,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if roller != nil {
		roller.Stop(shutdownCtx)
	}
	statusPoller.Stop(shutdownCtx)
	mgr.Stop(shutdownCtx)
	rtr.Stop(shutdownCtx)

	// Router close propagates through the drain goroutine to the sinks.
	<-drainDone
	if eventPG != nil {
		eventPG.Stop(shutdownCtx)
	}
	if err := eventCSV.Close(); err != nil {
		logger.Warn("failed to close events csv", "error", err)
	}
	if err := sessionLog.Close(); err != nil {
		logger.Warn("failed to close session index", "error", err)
	}

	healthServer.Shutdown(shutdownCtx)

	logger.Info("monitor stopped", "events_written", eventCSV.Rows())
}

// parseLevel maps the configured log level onto slog. Unknown values fall
// back to info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveInstruments turns a slug into watched instruments. Slugs usually
// name events; a slug that only exists as a market falls back to the market
// endpoint.
func resolveInstruments(ctx context.Context, client *catalog.Client, slug, asset string) ([]*model.WatchedInstrument, error) {
	ev, err := client.EventBySlug(ctx, slug)
	if err == nil {
		return catalog.Instruments(ev, asset)
	}

	var apiErr *catalog.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		return nil, err
	}

	m, err := client.MarketBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return catalog.Instruments(&catalog.Event{Slug: slug, Markets: []catalog.Market{*m}}, asset)
}

// sessionRecord builds the session index line for an instrument. The window
// end falls back to the observed end when the catalog gave no schedule.
func sessionRecord(inst *model.WatchedInstrument) model.SessionRecord {
	rec := model.SessionRecord{
		SessionID:    inst.SessionID,
		InstrumentID: inst.InstrumentID,
		MarketSlug:   inst.MarketSlug,
		ConditionID:  inst.ConditionID,
		Outcome:      inst.Outcome,
		Asset:        inst.Asset,
		WindowStart:  inst.RegisteredAt,
		WindowEnd:    inst.EndTime,
		RegisteredAt: inst.RegisteredAt,
		EndedAt:      inst.EndedAt,
	}
	if rec.WindowEnd.IsZero() {
		rec.WindowEnd = inst.EndedAt
	}
	return rec
}

// createHealthHandler creates the HTTP handler for health and stats.
func createHealthHandler(registry market.Registry, mgr feed.Manager, pool *pgxpool.Pool, collector *metrics.Collector) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check feed connection
		if mgr.IsConnected() {
			health.Components["feed"] = "connected"
		} else {
			health.Status = "degraded"
			health.Components["feed"] = "disconnected"
		}

		// Check database when the sink is enabled
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		health.Components["registry"] = map[string]interface{}{
			"active": len(registry.ActiveInstruments()),
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(collector.Snapshot())
	})

	mux.HandleFunc("/debug/instruments", func(w http.ResponseWriter, r *http.Request) {
		insts := registry.All()

		// Limit to first 100 for debugging
		total := len(insts)
		if total > 100 {
			insts = insts[:100]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":       total,
			"showing":     len(insts),
			"instruments": insts,
		})
	})

	return mux
}
