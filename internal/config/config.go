package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for catalog-ingest.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"  yaml:"source"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Ingest  IngestConfig  `mapstructure:"ingest"  yaml:"ingest"`
	Store   StoreConfig   `mapstructure:"store"   yaml:"store"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// SourceConfig describes the third-party catalog site being ingested.
type SourceConfig struct {
	BaseURL    string   `mapstructure:"base_url"    yaml:"base_url"`
	Categories []string `mapstructure:"categories"  yaml:"categories"`
	RenderJS   bool     `mapstructure:"render_js"   yaml:"render_js"`
	UserAgents []string `mapstructure:"user_agents" yaml:"user_agents"`
}

// FetcherConfig controls the page fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"` // http or browser
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"       yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"       yaml:"retry_delay"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"      yaml:"settle_delay"`
}

// IngestConfig controls pagination and persistence of a run.
type IngestConfig struct {
	StartPage           int           `mapstructure:"start_page"             yaml:"start_page"`
	MaxPages            int           `mapstructure:"max_pages"              yaml:"max_pages"`
	PageSize            int           `mapstructure:"page_size"              yaml:"page_size"`
	Delay               time.Duration `mapstructure:"delay"                  yaml:"delay"`
	RateLimitCooldown   time.Duration `mapstructure:"rate_limit_cooldown"    yaml:"rate_limit_cooldown"`
	MaxRateLimitRetries int           `mapstructure:"max_rate_limit_retries" yaml:"max_rate_limit_retries"` // 0 = unbounded
	BatchSize           int           `mapstructure:"batch_size"             yaml:"batch_size"`
}

// StoreConfig controls the catalog store backend.
type StoreConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"` // mongo or json
	URI        string `mapstructure:"uri"         yaml:"uri"`
	Database   string `mapstructure:"database"    yaml:"database"`
	Collection string `mapstructure:"collection"  yaml:"collection"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
}

// APIConfig controls the admin scraper API.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port"    yaml:"port"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL: "https://us.shein.com",
			Categories: []string{
				"women-dresses",
				"women-tops",
				"women-sweaters",
				"women-pants",
				"women-skirts",
			},
			RenderJS: true,
			UserAgents: []string{
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			},
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			RequestTimeout:  60 * time.Second,
			MaxRetries:      3,
			RetryDelay:      5 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			SettleDelay:     5 * time.Second,
		},
		Ingest: IngestConfig{
			StartPage:         1,
			MaxPages:          3,
			PageSize:          20,
			Delay:             2 * time.Second,
			RateLimitCooldown: 60 * time.Second,
			BatchSize:         100,
		},
		Store: StoreConfig{
			Type:       "mongo",
			URI:        "mongodb://localhost:27017",
			Database:   "fashion_store",
			Collection: "products",
			OutputPath: "./output/products.json",
		},
		API: APIConfig{
			Enabled: false,
			Port:    5001,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
