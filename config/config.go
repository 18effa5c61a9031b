package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds harvester configuration.
type Config struct {
	BaseURL           string
	CatalogPrefix     string
	StartPage         string
	MaxPages          int // 0 walks every listing page
	PageDelay         time.Duration
	ItemDelay         time.Duration
	Timeout           time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	RetryClientErrors bool
	BestEffort        bool
	Strict            bool
	OutputFile        string
	OutputFormat      string // csv, json, or dual
	UserAgent         string
	Verbose           bool
	RespectRobotsTxt  bool
	MetricsAddr       string
}

// DefaultConfig returns polite defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://books.toscrape.com/",
		CatalogPrefix:     "catalogue/",
		StartPage:         "page-1.html",
		MaxPages:          0,
		PageDelay:         200 * time.Millisecond,
		ItemDelay:         150 * time.Millisecond,
		Timeout:           30 * time.Second,
		MaxAttempts:       3,
		RetryDelay:        500 * time.Millisecond,
		RetryClientErrors: false,
		BestEffort:        false,
		Strict:            false,
		OutputFile:        "data/books.csv",
		OutputFormat:      "csv",
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:           false,
		RespectRobotsTxt:  false,
	}
}

// StartURL is the first listing page of the catalog.
func (c *Config) StartURL() string {
	return c.NormalizedBaseURL() + c.CatalogPrefix + c.StartPage
}

// NormalizedBaseURL returns BaseURL with exactly one trailing slash.
func (c *Config) NormalizedBaseURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/"
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.CatalogPrefix == "" || !strings.HasSuffix(c.CatalogPrefix, "/") {
		return fmt.Errorf("catalog prefix must be non-empty and end with a slash")
	}
	if strings.HasPrefix(c.CatalogPrefix, "/") {
		return fmt.Errorf("catalog prefix must be relative to the base URL")
	}
	if c.StartPage == "" {
		return fmt.Errorf("start page cannot be empty")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page delay cannot be negative")
	}
	if c.ItemDelay < 0 {
		return fmt.Errorf("item delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
