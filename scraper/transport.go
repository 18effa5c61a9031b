package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"github.com/aluiziolira/books-harvest/config"
)

// Fetcher performs single GET requests with bounded retry. It does not
// space out successive calls; callers own the politeness delays.
type Fetcher struct {
	collector *colly.Collector
	policy    RetryPolicy
	sleep     SleepFunc
	metrics   *Metrics

	mu           sync.Mutex
	requestCount int
	retryCount   int
	errorsByType map[string]int
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	retryClientErrors := cfg.RetryClientErrors
	return &Fetcher{
		collector: collector,
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Delay:       cfg.RetryDelay,
			Retryable: func(err error) bool {
				return isRetryable(err, retryClientErrors)
			},
		},
		sleep:        sleepContext,
		metrics:      metrics,
		errorsByType: make(map[string]int),
	}, nil
}

// Fetch returns the body of rawURL. phase labels the request in metrics.
// After the last failed attempt the error is a *TransportError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, phase string) ([]byte, error) {
	var body []byte
	attempts, err := retry(ctx, f.policy, f.sleep, func(attempt int) error {
		if attempt > 1 {
			f.mu.Lock()
			f.retryCount++
			f.mu.Unlock()
			f.metrics.IncRetries()
			slog.Debug("retrying request",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
			)
		}
		b, err := f.fetchOnce(rawURL, phase)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, &TransportError{URL: rawURL, Attempts: attempts, Err: err}
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(rawURL, phase string) ([]byte, error) {
	// A clone shares the HTTP backend but gets its own callbacks.
	c := f.collector.Clone()

	var (
		body        []byte
		contentType string
		statusCode  int
	)
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = r.Body
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	f.mu.Lock()
	f.requestCount++
	f.mu.Unlock()
	f.metrics.IncRequest(phase)

	start := time.Now()
	err := c.Visit(rawURL)
	f.metrics.ObserveDuration(phase, time.Since(start))

	if err != nil {
		classified := classifyError(err, statusCode)
		f.recordError(classified)
		slog.Debug("request error",
			slog.String("url", rawURL),
			slog.Int("status", statusCode),
			slog.String("category", errorTypeLabel(classified)),
			slog.Any("error", err),
		)
		return nil, classified
	}
	if len(bytes.TrimSpace(body)) == 0 {
		f.recordError(ErrEmptyBody)
		return nil, ErrEmptyBody
	}
	return toUTF8(body, contentType)
}

func (f *Fetcher) recordError(err error) {
	category := errorTypeLabel(err)
	f.mu.Lock()
	f.errorsByType[category]++
	f.mu.Unlock()
	f.metrics.IncError(category)
}

// RequestCount returns the number of HTTP attempts issued.
func (f *Fetcher) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestCount
}

// RetryCount returns the number of attempts beyond the first.
func (f *Fetcher) RetryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retryCount
}

// ErrorsByType returns a copy of the per-attempt error counts.
func (f *Fetcher) ErrorsByType() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		out[k] = v
	}
	return out
}

// toUTF8 leaves valid UTF-8 alone and otherwise decodes with the charset
// declared in the headers or sniffed from the document.
func toUTF8(body []byte, contentType string) ([]byte, error) {
	if utf8.Valid(body) {
		return body, nil
	}
	encoding, _, _ := charset.DetermineEncoding(body, contentType)
	decoded, err := encoding.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return decoded, nil
}
