package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Listing is what one catalog listing page links to, as raw hrefs.
type Listing struct {
	ItemHrefs []string
	NextHref  string
}

// HasNext reports whether the page carries a "next" control.
func (l Listing) HasNext() bool {
	return l.NextHref != ""
}

// ParseListing collects item links in page order and the "next" link.
func ParseListing(body []byte) (Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Listing{}, err
	}

	var listing Listing
	doc.Find("article.product_pod h3 a").Each(func(_ int, s *goquery.Selection) {
		if href := strings.TrimSpace(s.AttrOr("href", "")); href != "" {
			listing.ItemHrefs = append(listing.ItemHrefs, href)
		}
	})
	if next := doc.Find("li.next a").First(); next.Length() > 0 {
		listing.NextHref = strings.TrimSpace(next.AttrOr("href", ""))
	}
	return listing, nil
}
