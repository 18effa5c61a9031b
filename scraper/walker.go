package scraper

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/aluiziolira/books-harvest/parser"
)

type pageFetcher interface {
	Fetch(ctx context.Context, rawURL, phase string) ([]byte, error)
}

// Walker follows the "next" links of the catalog listing and collects the
// detail page links in page order.
type Walker struct {
	fetcher  pageFetcher
	resolver *parser.Resolver
	delay    time.Duration
	maxPages int
	sleep    SleepFunc
	metrics  *Metrics
}

// WalkResult is a materialised walk.
type WalkResult struct {
	Links     []string
	Pages     int
	Truncated bool // stopped at the page limit with a next link pending
}

// NewWalker builds a walker that sleeps delay between listing pages and
// stops after maxPages pages (0 means no limit).
func NewWalker(fetcher pageFetcher, resolver *parser.Resolver, delay time.Duration, maxPages int, metrics *Metrics) *Walker {
	return &Walker{
		fetcher:  fetcher,
		resolver: resolver,
		delay:    delay,
		maxPages: maxPages,
		sleep:    sleepContext,
		metrics:  metrics,
	}
}

// Links lazily yields every detail link reachable from firstURL. Each call
// starts a fresh walk. A listing failure is yielded once as a *WalkError
// and ends the sequence.
func (w *Walker) Links(ctx context.Context, firstURL string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		_, err := w.walk(ctx, firstURL, func(link string) bool {
			if !yield(link, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// Walk materialises the whole link set. On a *WalkError the links gathered
// before the failing page are still returned alongside the error.
func (w *Walker) Walk(ctx context.Context, firstURL string) (*WalkResult, error) {
	result := &WalkResult{}
	stats, err := w.walk(ctx, firstURL, func(link string) bool {
		result.Links = append(result.Links, link)
		return true
	})
	result.Pages = stats.pages
	result.Truncated = stats.truncated
	return result, err
}

type walkStats struct {
	pages     int
	truncated bool
}

func (w *Walker) walk(ctx context.Context, firstURL string, emit func(string) bool) (walkStats, error) {
	var stats walkStats
	visited := make(map[string]struct{})

	pageURL := firstURL
	for pageURL != "" {
		if w.maxPages > 0 && stats.pages >= w.maxPages {
			stats.truncated = true
			slog.Warn("page limit reached, catalog walk truncated",
				slog.Int("max_pages", w.maxPages),
				slog.String("next_url", pageURL),
			)
			break
		}
		pageNum := stats.pages + 1
		if stats.pages > 0 {
			if err := w.sleep(ctx, w.delay); err != nil {
				return stats, &WalkError{URL: pageURL, Page: pageNum, Err: err}
			}
		}
		visited[pageURL] = struct{}{}

		body, err := w.fetcher.Fetch(ctx, pageURL, phaseListing)
		if err != nil {
			return stats, &WalkError{URL: pageURL, Page: pageNum, Err: err}
		}
		listing, err := parser.ParseListing(body)
		if err != nil {
			return stats, &WalkError{URL: pageURL, Page: pageNum, Err: err}
		}
		stats.pages++
		w.metrics.IncPages()

		slog.Debug("listing page walked",
			slog.Int("page", pageNum),
			slog.String("url", pageURL),
			slog.Int("items", len(listing.ItemHrefs)),
		)
		for _, href := range listing.ItemHrefs {
			if !emit(w.resolver.Resolve(href)) {
				return stats, nil
			}
		}

		pageURL = ""
		if listing.HasNext() {
			next := w.resolver.Resolve(listing.NextHref)
			if _, seen := visited[next]; seen {
				slog.Warn("next link points at a walked page, stopping",
					slog.String("url", next),
				)
				break
			}
			pageURL = next
		}
	}
	return stats, nil
}
