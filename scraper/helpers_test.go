package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/books-harvest/config"
)

const testBase = "http://example.test/"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBase
	cfg.PageDelay = 200 * time.Millisecond
	cfg.ItemDelay = 150 * time.Millisecond
	cfg.RetryDelay = 500 * time.Millisecond
	cfg.MaxAttempts = 3
	return cfg
}

// recordingClock stands in for time.Sleep and records every requested delay.
type recordingClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (rc *recordingClock) Sleep(ctx context.Context, d time.Duration) error {
	rc.mu.Lock()
	rc.sleeps = append(rc.sleeps, d)
	rc.mu.Unlock()
	return ctx.Err()
}

func (rc *recordingClock) all() []time.Duration {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]time.Duration, len(rc.sleeps))
	copy(out, rc.sleeps)
	return out
}

func (rc *recordingClock) count(d time.Duration) int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	n := 0
	for _, s := range rc.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

// sequenceResponder answers with the given statuses in order and repeats the
// last one; 200 answers carry body.
func sequenceResponder(body string, statuses ...int) (httpmock.Responder, *int) {
	var (
		mu    sync.Mutex
		calls int
	)
	responder := func(*http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		status := statuses[len(statuses)-1]
		if calls < len(statuses) {
			status = statuses[calls]
		}
		calls++
		if status == http.StatusOK {
			resp := httpmock.NewStringResponse(status, body)
			resp.Header.Set("Content-Type", "text/html")
			return resp, nil
		}
		return httpmock.NewStringResponse(status, ""), nil
	}
	return responder, &calls
}

func buildCatalogPage(slugs []string, nextHref string) string {
	var builder strings.Builder
	builder.WriteString("<html><body><section><ol class=\"row\">")
	for _, slug := range slugs {
		builder.WriteString("<li><article class=\"product_pod\">")
		fmt.Fprintf(&builder, "<h3><a href=\"%s/index.html\" title=\"%s\">%s</a></h3>", slug, slug, slug)
		builder.WriteString("<p class=\"star-rating Two\"></p><p class=\"price_color\">&pound;1.00</p>")
		builder.WriteString("</article></li>")
	}
	builder.WriteString("</ol>")
	if nextHref != "" {
		fmt.Fprintf(&builder, "<ul class=\"pager\"><li class=\"next\"><a href=\"%s\">next</a></li></ul>", nextHref)
	}
	builder.WriteString("</section></body></html>")
	return builder.String()
}

func buildDetailPage(title, price string, stock int, rating string) string {
	var builder strings.Builder
	builder.WriteString("<html><body>")
	builder.WriteString("<ul class=\"breadcrumb\"><li><a href=\"../../index.html\">Home</a></li>")
	builder.WriteString("<li><a href=\"../category/books_1/index.html\">Books</a></li>")
	builder.WriteString("<li><a href=\"../category/books/poetry_23/index.html\">Poetry</a></li>")
	fmt.Fprintf(&builder, "<li class=\"active\">%s</li></ul>", title)
	builder.WriteString("<div class=\"item active\"><div class=\"thumbnail\"><img src=\"../../media/cache/cover.jpg\"/></div></div>")
	builder.WriteString("<div class=\"product_main\">")
	if title != "" {
		fmt.Fprintf(&builder, "<h1>%s</h1>", title)
	}
	fmt.Fprintf(&builder, "<p class=\"price_color\">%s</p>", price)
	fmt.Fprintf(&builder, "<p class=\"instock availability\">In stock (%d available)</p>", stock)
	fmt.Fprintf(&builder, "<p class=\"star-rating %s\"></p>", rating)
	builder.WriteString("</div>")
	builder.WriteString("<div id=\"product_description\"><h2>Product Description</h2></div><p>A description.</p>")
	builder.WriteString("<table><tr><th>UPC</th><td>upc-123</td></tr></table>")
	builder.WriteString("</body></html>")
	return builder.String()
}

func catalogURL(path string) string {
	return testBase + "catalogue/" + path
}

func detailURL(slug string) string {
	return catalogURL(slug + "/index.html")
}
