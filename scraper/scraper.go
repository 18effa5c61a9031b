package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/books-harvest/config"
	"github.com/aluiziolira/books-harvest/models"
	"github.com/aluiziolira/books-harvest/parser"
)

// ExtractFunc turns one fetched detail page into a Book.
type ExtractFunc func(body []byte, sourceURL string, resolver *parser.Resolver) (*models.Book, error)

// Scraper drives a harvest: walk the catalog, then fetch and extract every
// detail page one at a time.
type Scraper struct {
	cfg      *config.Config
	fetcher  *Fetcher
	walker   *Walker
	resolver *parser.Resolver
	extract  ExtractFunc
	sleep    SleepFunc
	Metrics  *Metrics

	extractionErrors map[string]int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}
	resolver := parser.NewResolver(cfg.BaseURL, cfg.CatalogPrefix)

	return &Scraper{
		cfg:              cfg,
		fetcher:          fetcher,
		walker:           NewWalker(fetcher, resolver, cfg.PageDelay, cfg.MaxPages, metrics),
		resolver:         resolver,
		extract:          parser.ExtractBook,
		sleep:            sleepContext,
		Metrics:          metrics,
		extractionErrors: make(map[string]int),
	}, nil
}

// SetSleep replaces the clock used for page, item and retry delays.
func (s *Scraper) SetSleep(sleep SleepFunc) {
	if sleep == nil {
		sleep = sleepContext
	}
	s.sleep = sleep
	s.walker.sleep = sleep
	s.fetcher.sleep = sleep
}

// Run walks the catalog and harvests every detail page. A walk failure
// aborts the run with no records unless best effort is configured; a
// failing item only lands in the failure report.
func (s *Scraper) Run(ctx context.Context) (*models.HarvestResult, error) {
	result := &models.HarvestResult{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}
	logger := slog.With(slog.String("run_id", result.RunID))
	s.extractionErrors = make(map[string]int)

	startURL := s.cfg.StartURL()
	walk, err := s.walker.Walk(ctx, startURL)
	result.PageCount = walk.Pages
	if err != nil {
		if !s.cfg.BestEffort {
			return nil, err
		}
		result.Partial = true
		result.PartialReason = fmt.Sprintf("catalog walk stopped early: %v", err)
		logger.Warn("catalog walk failed, continuing with collected links",
			slog.Int("links", len(walk.Links)),
			slog.Any("error", err),
		)
	} else if walk.Truncated {
		result.Partial = true
		result.PartialReason = fmt.Sprintf("page limit of %d reached", s.cfg.MaxPages)
	}

	total := len(walk.Links)
	result.LinkCount = total
	logger.Info("catalog walked",
		slog.String("start_url", startURL),
		slog.Int("pages", walk.Pages),
		slog.Int("links", total),
	)

	interrupted := func(done int, err error) error {
		if !s.cfg.BestEffort {
			return fmt.Errorf("harvest interrupted after %d of %d items: %w", done, total, err)
		}
		result.Partial = true
		result.PartialReason = fmt.Sprintf("interrupted after %d of %d items", done, total)
		logger.Warn("harvest interrupted, keeping collected records",
			slog.Int("done", done),
			slog.Int("total", total),
			slog.Any("error", err),
		)
		return nil
	}

	halted := false
	index := make(map[string]int, total)
	for i, link := range walk.Links {
		err := ctx.Err()
		if err == nil && i > 0 {
			err = s.sleep(ctx, s.cfg.ItemDelay)
		}
		if err != nil {
			if err := interrupted(i, err); err != nil {
				return nil, err
			}
			halted = true
			break
		}

		book, kind, err := s.harvestItem(ctx, link)
		if err != nil {
			result.Failures = append(result.Failures, models.ItemFailure{URL: link, Kind: kind, Err: err})
			s.Metrics.IncFailed(kind)
			logger.Warn("item failed",
				slog.Int("item", i+1),
				slog.Int("total", total),
				slog.String("url", link),
				slog.String("kind", kind),
				slog.Any("error", err),
			)
			continue
		}

		if pos, dup := index[book.ID]; dup {
			// last write wins, keeping the first position
			result.Books[pos] = book
			result.DuplicateCount++
			logger.Warn("duplicate book id, keeping latest record",
				slog.String("id", book.ID),
				slog.String("url", link),
			)
		} else {
			index[book.ID] = len(result.Books)
			result.Books = append(result.Books, book)
		}
		s.Metrics.IncItems()

		logger.Debug("item harvested",
			slog.Int("item", i+1),
			slog.Int("total", total),
			slog.String("title", book.Title),
		)
		if (i+1)%50 == 0 {
			logger.Info("harvest progress",
				slog.Int("done", i+1),
				slog.Int("total", total),
				slog.Int("failed", len(result.Failures)),
			)
		}
	}

	// A cancellation that lands during the last fetch only shows up here.
	if err := ctx.Err(); err != nil && !halted {
		if err := interrupted(total, err); err != nil {
			return nil, err
		}
	}

	result.EndTime = time.Now()
	result.RequestCount = s.fetcher.RequestCount()
	result.RetryCount = s.fetcher.RetryCount()
	result.ErrorsByType = s.fetcher.ErrorsByType()
	for k, v := range s.extractionErrors {
		result.ErrorsByType[k] += v
	}
	return result, nil
}

func (s *Scraper) harvestItem(ctx context.Context, link string) (*models.Book, string, error) {
	body, err := s.fetcher.Fetch(ctx, link, phaseDetail)
	if err != nil {
		return nil, models.FailureTransport, err
	}
	book, err := s.extract(body, link, s.resolver)
	if err != nil {
		s.countExtractionError(err)
		return nil, models.FailureExtraction, err
	}
	if err := book.Validate(); err != nil {
		s.countExtractionError(err)
		return nil, models.FailureInvalidRecord, err
	}
	return book, "", nil
}

func (s *Scraper) countExtractionError(err error) {
	category := errorTypeLabel(err)
	s.extractionErrors[category]++
	s.Metrics.IncError(category)
}
