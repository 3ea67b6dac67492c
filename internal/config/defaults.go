package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel       = "info"
	DefaultTargetPrice    = 0.999
	DefaultTolerance      = 0.0001
	DefaultFeedURL        = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultReadTimeout    = 60 * time.Second
	DefaultReconnectMin   = 1 * time.Second
	DefaultReconnectMax   = 30 * time.Second
	DefaultCatalogURL     = "https://gamma-api.polymarket.com"
	DefaultCatalogTimeout = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultWindow         = 15 * time.Minute
	DefaultPollInterval   = 60 * time.Second
	DefaultEventsCSV      = "data/events.csv"
	DefaultSessionsJSONL  = "data/sessions.jsonl"
	DefaultBufferSize     = 4096
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 1 * time.Second
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 4
	DefaultMinConns       = 1
	DefaultHealthAddr     = ":8080"
)

func (c *MonitorConfig) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	// Target defaults
	if c.Target.Price == 0 {
		c.Target.Price = DefaultTargetPrice
	}
	if c.Target.Tolerance == 0 {
		c.Target.Tolerance = DefaultTolerance
	}

	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.ReadTimeout == 0 {
		c.Feed.ReadTimeout = DefaultReadTimeout
	}
	if c.Feed.ReconnectMin == 0 {
		c.Feed.ReconnectMin = DefaultReconnectMin
	}
	if c.Feed.ReconnectMax == 0 {
		c.Feed.ReconnectMax = DefaultReconnectMax
	}

	// Catalog defaults
	if c.Catalog.URL == "" {
		c.Catalog.URL = DefaultCatalogURL
	}
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultCatalogTimeout
	}
	if c.Catalog.MaxRetries == 0 {
		c.Catalog.MaxRetries = DefaultMaxRetries
	}

	// Watch defaults
	if c.Watch.Window == 0 {
		c.Watch.Window = DefaultWindow
	}
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = DefaultPollInterval
	}

	// Output defaults
	if c.Output.EventsCSV == "" {
		c.Output.EventsCSV = DefaultEventsCSV
	}
	if c.Output.SessionsJSONL == "" {
		c.Output.SessionsJSONL = DefaultSessionsJSONL
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = DefaultBufferSize
	}
	if c.Output.BatchSize == 0 {
		c.Output.BatchSize = DefaultBatchSize
	}
	if c.Output.FlushInterval == 0 {
		c.Output.FlushInterval = DefaultFlushInterval
	}

	// Database defaults (only when the sink is configured)
	if c.Database.Enabled() {
		if c.Database.Port == 0 {
			c.Database.Port = DefaultDBPort
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = DefaultDBSSLMode
		}
		if c.Database.MaxConns == 0 {
			c.Database.MaxConns = DefaultMaxConns
		}
		if c.Database.MinConns == 0 {
			c.Database.MinConns = DefaultMinConns
		}
	}

	// Health defaults
	if c.Health.Addr == "" {
		c.Health.Addr = DefaultHealthAddr
	}
}
