package config

import "time"

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	LogLevel string         `yaml:"log_level"`
	Target   TargetConfig   `yaml:"target"`
	Feed     FeedConfig     `yaml:"feed"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Watch    WatchConfig    `yaml:"watch"`
	Output   OutputConfig   `yaml:"output"`
	Database DatabaseConfig `yaml:"database"`
	Health   HealthConfig   `yaml:"health"`
}

// TargetConfig holds the detection target.
type TargetConfig struct {
	Price     float64 `yaml:"price"`     // watched price level
	Tolerance float64 `yaml:"tolerance"` // |price - target| < tolerance passes
}

// FeedConfig holds WebSocket feed settings. The feed server drives the ping
// cadence itself; read_timeout bounds how long its pings may go quiet before
// the connection is treated as stale.
type FeedConfig struct {
	URL          string        `yaml:"url"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

// CatalogConfig holds Gamma API client settings.
type CatalogConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// WatchConfig selects what to monitor. Slugs drive finite mode (run until
// every named market ends); Assets + Window drive continuous mode (roll
// windowed markets forever).
type WatchConfig struct {
	Slugs        []string      `yaml:"slugs"`
	Assets       []string      `yaml:"assets"`
	Window       time.Duration `yaml:"window"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Continuous   bool          `yaml:"continuous"`
}

// OutputConfig holds event persistence settings.
type OutputConfig struct {
	EventsCSV     string        `yaml:"events_csv"`
	SessionsJSONL string        `yaml:"sessions_jsonl"`
	BufferSize    int           `yaml:"buffer_size"`
	BatchSize     int           `yaml:"batch_size"`     // Postgres sink only
	FlushInterval time.Duration `yaml:"flush_interval"` // Postgres sink only
}

// DatabaseConfig holds the optional Postgres event sink connection.
// An empty host leaves the sink disabled.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether the Postgres sink is configured.
func (db DatabaseConfig) Enabled() bool {
	return db.Host != ""
}

// HealthConfig holds the health/stats HTTP server settings.
type HealthConfig struct {
	Addr string `yaml:"addr"`
}
