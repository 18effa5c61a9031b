package scraper

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/books-harvest/config"
	"github.com/aluiziolira/books-harvest/models"
	"github.com/aluiziolira/books-harvest/parser"
)

func newTestScraper(t *testing.T, cfg *config.Config) (*Scraper, *httpmock.MockTransport, *recordingClock) {
	t.Helper()
	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	transport := httpmock.NewMockTransport()
	s.fetcher.collector.WithTransport(transport)
	clock := &recordingClock{}
	s.SetSleep(clock.Sleep)
	return s, transport, clock
}

func TestScraper_Integration(t *testing.T) {
	cfg := testConfig()
	s, transport, clock := newTestScraper(t, cfg)
	registerTwoPageCatalog(transport)
	transport.RegisterResponder("GET", detailURL("p1-item1"), htmlResponder(buildDetailPage("Item One", "£51.77", 22, "Three")))
	transport.RegisterResponder("GET", detailURL("p1-item2"), htmlResponder(buildDetailPage("Item Two", "£10.00", 1, "Five")))
	transport.RegisterResponder("GET", detailURL("p2-item1"), htmlResponder(buildDetailPage("Item Three", "£3.50", 0, "One")))

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Succeeded() != 3 || result.Failed() != 0 {
		t.Fatalf("succeeded=%d failed=%d, want 3/0 (failures %v)", result.Succeeded(), result.Failed(), result.Failures)
	}
	if result.LinkCount != 3 || result.PageCount != 2 || result.Partial {
		t.Fatalf("links=%d pages=%d partial=%v", result.LinkCount, result.PageCount, result.Partial)
	}
	if result.RunID == "" {
		t.Fatalf("run id should be set")
	}

	wantIDs := []string{"p1-item1", "p1-item2", "p2-item1"}
	for i, book := range result.Books {
		if book.ID != wantIDs[i] {
			t.Fatalf("book %d id = %q, want %q", i, book.ID, wantIDs[i])
		}
	}

	sample := result.Books[0]
	if sample.Title != "Item One" || sample.Price != 51.77 || sample.Stock != 22 || sample.Rating != 3 {
		t.Fatalf("unexpected sample %+v", sample)
	}
	if sample.Category != "Poetry" || sample.UPC != "upc-123" || sample.ProductPageURL != detailURL("p1-item1") {
		t.Fatalf("unexpected sample %+v", sample)
	}
	if sample.ImageURL != catalogURL("media/cache/cover.jpg") {
		t.Fatalf("image = %q", sample.ImageURL)
	}

	if got := clock.count(cfg.ItemDelay); got != 2 {
		t.Fatalf("item delays = %d, want 2 (sleeps %v)", got, clock.all())
	}
	if got := clock.count(cfg.PageDelay); got != 1 {
		t.Fatalf("page delays = %d, want 1", got)
	}
	if result.RequestCount != 5 {
		t.Fatalf("requests = %d, want 5", result.RequestCount)
	}
}

func TestScraperToleratesFailingItems(t *testing.T) {
	cfg := testConfig()
	s, transport, _ := newTestScraper(t, cfg)
	registerTwoPageCatalog(transport)
	transport.RegisterResponder("GET", detailURL("p1-item1"), htmlResponder(buildDetailPage("Item One", "£51.77", 22, "Three")))
	notFound, _ := sequenceResponder("", http.StatusNotFound)
	transport.RegisterResponder("GET", detailURL("p1-item2"), notFound)
	transport.RegisterResponder("GET", detailURL("p2-item1"), htmlResponder(buildDetailPage("", "£3.50", 0, "One")))

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Succeeded() != 1 || result.Failed() != 2 {
		t.Fatalf("succeeded=%d failed=%d, want 1/2", result.Succeeded(), result.Failed())
	}

	byURL := make(map[string]models.ItemFailure)
	for _, failure := range result.Failures {
		byURL[failure.URL] = failure
	}
	if f := byURL[detailURL("p1-item2")]; f.Kind != models.FailureTransport {
		t.Fatalf("p1-item2 failure kind = %q, want transport", f.Kind)
	}
	missingTitle := byURL[detailURL("p2-item1")]
	var extractErr *parser.ExtractionError
	if missingTitle.Kind != models.FailureExtraction || !errors.As(missingTitle.Err, &extractErr) || extractErr.Field != "title" {
		t.Fatalf("p2-item1 failure = %v", missingTitle)
	}
	if result.ErrorsByType["not_found"] != 1 || result.ErrorsByType["extraction"] != 1 {
		t.Fatalf("errors by type = %v", result.ErrorsByType)
	}
}

func TestScraperWalkFailureAbortsRun(t *testing.T) {
	cfg := testConfig()
	s, transport, _ := newTestScraper(t, cfg)
	transport.RegisterResponder("GET", catalogURL("page-1.html"), htmlResponder(buildCatalogPage([]string{"p1-item1"}, "page-2.html")))
	broken, _ := sequenceResponder("", http.StatusBadGateway)
	transport.RegisterResponder("GET", catalogURL("page-2.html"), broken)
	detail, detailCalls := sequenceResponder(buildDetailPage("Item One", "£1.00", 1, "One"), http.StatusOK)
	transport.RegisterResponder("GET", detailURL("p1-item1"), detail)

	result, err := s.Run(context.Background())
	var walkErr *WalkError
	if !errors.As(err, &walkErr) {
		t.Fatalf("expected WalkError, got %v", err)
	}
	if result != nil {
		t.Fatalf("fatal run should return no result, got %+v", result)
	}
	if *detailCalls != 0 {
		t.Fatalf("detail pages fetched after a fatal walk")
	}
}

func TestScraperBestEffortKeepsCollectedLinks(t *testing.T) {
	cfg := testConfig()
	cfg.BestEffort = true
	s, transport, _ := newTestScraper(t, cfg)
	transport.RegisterResponder("GET", catalogURL("page-1.html"), htmlResponder(buildCatalogPage([]string{"p1-item1"}, "page-2.html")))
	broken, _ := sequenceResponder("", http.StatusBadGateway)
	transport.RegisterResponder("GET", catalogURL("page-2.html"), broken)
	transport.RegisterResponder("GET", detailURL("p1-item1"), htmlResponder(buildDetailPage("Item One", "£1.00", 1, "One")))

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Partial || result.PartialReason == "" {
		t.Fatalf("best-effort result should be marked partial")
	}
	if result.Succeeded() != 1 {
		t.Fatalf("succeeded = %d, want 1", result.Succeeded())
	}
}

func TestScraperDuplicateIDsLastWriteWins(t *testing.T) {
	cfg := testConfig()
	s, transport, _ := newTestScraper(t, cfg)
	listing := `<html><body>
		<article class="product_pod"><h3><a href="dup_1/index.html">first</a></h3></article>
		<article class="product_pod"><h3><a href="other_2/index.html">other</a></h3></article>
		<article class="product_pod"><h3><a href="dup_1/reprint.html">second</a></h3></article>
	</body></html>`
	transport.RegisterResponder("GET", catalogURL("page-1.html"), htmlResponder(listing))
	transport.RegisterResponder("GET", catalogURL("dup_1/index.html"), htmlResponder(buildDetailPage("First Print", "£1.00", 1, "One")))
	transport.RegisterResponder("GET", catalogURL("other_2/index.html"), htmlResponder(buildDetailPage("Other", "£2.00", 2, "Two")))
	transport.RegisterResponder("GET", catalogURL("dup_1/reprint.html"), htmlResponder(buildDetailPage("Reprint", "£3.00", 3, "Three")))

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Succeeded() != 2 || result.DuplicateCount != 1 {
		t.Fatalf("succeeded=%d duplicates=%d, want 2/1", result.Succeeded(), result.DuplicateCount)
	}
	if result.Books[0].ID != "dup_1" || result.Books[0].Title != "Reprint" {
		t.Fatalf("first record = %+v, want the reprint in the first slot", result.Books[0])
	}
}

func TestScraperCancelledContext(t *testing.T) {
	cfg := testConfig()
	s, transport, _ := newTestScraper(t, cfg)
	registerTwoPageCatalog(transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestScraperPageLimitMarksPartial(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 1
	s, transport, _ := newTestScraper(t, cfg)
	registerTwoPageCatalog(transport)
	transport.RegisterResponder("GET", detailURL("p1-item1"), htmlResponder(buildDetailPage("Item One", "£1.00", 1, "One")))
	transport.RegisterResponder("GET", detailURL("p1-item2"), htmlResponder(buildDetailPage("Item Two", "£2.00", 2, "Two")))

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Partial || result.Succeeded() != 2 {
		t.Fatalf("partial=%v succeeded=%d, want true/2", result.Partial, result.Succeeded())
	}
}

// cancelOnItemDelay cancels the run when the nth item delay starts.
func cancelOnItemDelay(cfg *config.Config, n int, cancel context.CancelFunc) SleepFunc {
	seen := 0
	return func(ctx context.Context, d time.Duration) error {
		if d == cfg.ItemDelay {
			seen++
			if seen == n {
				cancel()
			}
		}
		return ctx.Err()
	}
}

func registerThreeItems(transport *httpmock.MockTransport) {
	registerTwoPageCatalog(transport)
	transport.RegisterResponder("GET", detailURL("p1-item1"), htmlResponder(buildDetailPage("Item One", "£1.00", 1, "One")))
	transport.RegisterResponder("GET", detailURL("p1-item2"), htmlResponder(buildDetailPage("Item Two", "£2.00", 2, "Two")))
	transport.RegisterResponder("GET", detailURL("p2-item1"), htmlResponder(buildDetailPage("Item Three", "£3.00", 3, "Three")))
}

func TestScraperCancelDuringLastItemDelayIsFatal(t *testing.T) {
	cfg := testConfig()
	s, transport, _ := newTestScraper(t, cfg)
	registerThreeItems(transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.SetSleep(cancelOnItemDelay(cfg, 2, cancel))

	result, err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil on an interrupted run", result)
	}
}

func TestScraperCancelDuringLastItemDelayBestEffort(t *testing.T) {
	cfg := testConfig()
	cfg.BestEffort = true
	s, transport, _ := newTestScraper(t, cfg)
	registerThreeItems(transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.SetSleep(cancelOnItemDelay(cfg, 2, cancel))

	result, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Partial || result.PartialReason == "" {
		t.Fatalf("partial=%v reason=%q, want a marked partial result", result.Partial, result.PartialReason)
	}
	if result.Succeeded() != 2 || result.LinkCount != 3 {
		t.Fatalf("succeeded=%d links=%d, want 2/3", result.Succeeded(), result.LinkCount)
	}
}

func TestScraperCancelDuringLastFetchIsFatal(t *testing.T) {
	cfg := testConfig()
	s, transport, _ := newTestScraper(t, cfg)
	registerTwoPageCatalog(transport)
	transport.RegisterResponder("GET", detailURL("p1-item1"), htmlResponder(buildDetailPage("Item One", "£1.00", 1, "One")))
	transport.RegisterResponder("GET", detailURL("p1-item2"), htmlResponder(buildDetailPage("Item Two", "£2.00", 2, "Two")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	last := buildDetailPage("Item Three", "£3.00", 3, "Three")
	transport.RegisterResponder("GET", detailURL("p2-item1"), func(req *http.Request) (*http.Response, error) {
		cancel()
		return httpmock.NewStringResponse(http.StatusOK, last), nil
	})

	if _, err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
