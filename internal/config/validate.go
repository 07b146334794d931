package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if u, err := url.Parse(cfg.Source.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url %q is not an absolute URL", cfg.Source.BaseURL)
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.RetryDelay < 0 {
		return fmt.Errorf("fetcher.retry_delay must be >= 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Ingest.StartPage < 1 {
		return fmt.Errorf("ingest.start_page must be >= 1, got %d", cfg.Ingest.StartPage)
	}
	if cfg.Ingest.MaxPages != 0 && cfg.Ingest.MaxPages < cfg.Ingest.StartPage {
		return fmt.Errorf("ingest.max_pages (%d) must be 0 (unlimited) or >= ingest.start_page (%d)",
			cfg.Ingest.MaxPages, cfg.Ingest.StartPage)
	}
	if cfg.Ingest.Delay < 0 {
		return fmt.Errorf("ingest.delay must be >= 0")
	}
	if cfg.Ingest.RateLimitCooldown < 0 {
		return fmt.Errorf("ingest.rate_limit_cooldown must be >= 0")
	}
	if cfg.Ingest.MaxRateLimitRetries < 0 {
		return fmt.Errorf("ingest.max_rate_limit_retries must be >= 0 (0 = unbounded)")
	}
	if cfg.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be >= 1, got %d", cfg.Ingest.BatchSize)
	}

	switch cfg.Store.Type {
	case "mongo":
		if cfg.Store.URI == "" {
			return fmt.Errorf("store.uri must be set for the mongo store")
		}
		if cfg.Store.Database == "" || cfg.Store.Collection == "" {
			return fmt.Errorf("store.database and store.collection must be set for the mongo store")
		}
	case "json":
		if cfg.Store.OutputPath == "" {
			return fmt.Errorf("store.output_path must be set for the json store")
		}
	default:
		return fmt.Errorf("store.type %q is not supported (valid: mongo, json)", cfg.Store.Type)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level %q is not supported (valid: debug, info, warn, error)", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.API.Enabled && (cfg.API.Port < 1 || cfg.API.Port > 65535) {
		return fmt.Errorf("api.port must be in 1..65535, got %d", cfg.API.Port)
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be in 1..65535, got %d", cfg.Metrics.Port)
	}

	return nil
}

// ValidateURL checks that a raw URL is absolute http(s).
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}
