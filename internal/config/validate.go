package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks that all required fields are set and values are valid.
// Intended to run after applyDefaults.
func (c *MonitorConfig) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug|info|warn|error, got %q", c.LogLevel)
	}

	if c.Target.Price <= 0 || c.Target.Price >= 1 {
		return fmt.Errorf("target.price must be between 0 and 1 exclusive, got %v", c.Target.Price)
	}
	if c.Target.Tolerance <= 0 || c.Target.Tolerance >= 1 {
		return fmt.Errorf("target.tolerance must be between 0 and 1 exclusive, got %v", c.Target.Tolerance)
	}

	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}
	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		return fmt.Errorf("feed.url must use ws:// or wss://, got %q", c.Feed.URL)
	}
	if c.Feed.ReconnectMin < time.Second {
		return errors.New("feed.reconnect_min must be >= 1s")
	}
	if c.Feed.ReconnectMax < c.Feed.ReconnectMin {
		return fmt.Errorf("feed.reconnect_max (%s) cannot be below reconnect_min (%s)", c.Feed.ReconnectMax, c.Feed.ReconnectMin)
	}

	if c.Catalog.URL == "" {
		return errors.New("catalog.url is required")
	}

	if err := c.Watch.validate(); err != nil {
		return err
	}

	if c.Output.EventsCSV == "" {
		return errors.New("output.events_csv is required")
	}
	if c.Output.BufferSize < 1 {
		return errors.New("output.buffer_size must be >= 1")
	}
	if c.Output.BatchSize < 1 {
		return errors.New("output.batch_size must be >= 1")
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Health.Addr == "" {
		return errors.New("health.addr is required")
	}

	return nil
}

func (w *WatchConfig) validate() error {
	if w.Continuous {
		if len(w.Assets) == 0 {
			return errors.New("watch.assets is required in continuous mode")
		}
		if w.Window < time.Minute || w.Window%time.Minute != 0 {
			return fmt.Errorf("watch.window must be a whole number of minutes, got %s", w.Window)
		}
	} else {
		if len(w.Slugs) == 0 {
			return errors.New("watch.slugs is required unless watch.continuous is set")
		}
	}
	if w.PollInterval < time.Second {
		return errors.New("watch.poll_interval must be >= 1s")
	}
	return nil
}

func (db *DatabaseConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
