// Package parser extracts catalog structure and book records from the
// HTML served by the catalog site.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/books-harvest/models"
)

// UPCLabel is the attribute table label holding the external product code.
const UPCLabel = "UPC"

var (
	nonPriceChars = regexp.MustCompile(`[^0-9.]`)
	firstInteger  = regexp.MustCompile(`\d+`)

	ratingWords = map[string]int{
		"One":   1,
		"Two":   2,
		"Three": 3,
		"Four":  4,
		"Five":  5,
	}
)

// ExtractBook parses one detail page into a Book. Title, price and the URL
// slug are mandatory and return an *ExtractionError; every other field falls
// back to its zero value when the page does not carry it.
func ExtractBook(body []byte, sourceURL string, resolver *Resolver) (*models.Book, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractionError{Field: "document", URL: sourceURL, Err: err}
	}

	id, err := Slug(sourceURL)
	if err != nil {
		return nil, &ExtractionError{Field: "id", URL: sourceURL, Err: err}
	}
	title, err := extractTitle(doc)
	if err != nil {
		return nil, &ExtractionError{Field: "title", URL: sourceURL, Err: err}
	}
	price, err := extractPrice(doc)
	if err != nil {
		return nil, &ExtractionError{Field: "price", URL: sourceURL, Err: err}
	}

	book := &models.Book{
		ID:             id,
		Title:          title,
		Price:          price,
		Stock:          extractStock(doc),
		Rating:         extractRating(doc),
		ProductPageURL: sourceURL,
	}
	if category, ok := extractCategory(doc, title); ok {
		book.Category = category
	}
	if upc, ok := extractAttribute(doc, UPCLabel); ok {
		book.UPC = upc
	}
	if description, ok := extractDescription(doc); ok {
		book.Description = description
	}
	if image, ok := extractImage(doc, resolver); ok {
		book.ImageURL = image
	}
	return book, nil
}

func extractTitle(doc *goquery.Document) (string, error) {
	heading := doc.Find(".product_main h1").First()
	if heading.Length() == 0 {
		return "", errMissing
	}
	title := strings.TrimSpace(heading.Text())
	if title == "" {
		return "", errEmpty
	}
	return title, nil
}

func extractPrice(doc *goquery.Document) (float64, error) {
	node := doc.Find(".product_main .price_color").First()
	if node.Length() == 0 {
		return 0, errMissing
	}
	return ParsePrice(node.Text())
}

func extractStock(doc *goquery.Document) int {
	node := doc.Find(".product_main .availability").First()
	if node.Length() == 0 {
		return 0
	}
	return ParseStock(node.Text())
}

func extractRating(doc *goquery.Document) int {
	node := doc.Find(".product_main .star-rating").First()
	if node.Length() == 0 {
		return 0
	}
	class, _ := node.Attr("class")
	return RatingFromClass(class)
}

// extractCategory reads the breadcrumb links. On some pages the last link
// is the book itself, so a last entry equal to the title falls back to the
// one before it. This is a heuristic for one site quirk.
func extractCategory(doc *goquery.Document, title string) (string, bool) {
	var trail []string
	doc.Find(".breadcrumb li a").Each(func(_ int, s *goquery.Selection) {
		trail = append(trail, strings.TrimSpace(s.Text()))
	})
	if len(trail) < 3 {
		return "", false
	}
	category := trail[len(trail)-1]
	if category == title {
		category = trail[len(trail)-2]
	}
	if category == "" {
		return "", false
	}
	return category, true
}

func extractAttribute(doc *goquery.Document, label string) (string, bool) {
	var (
		value string
		found bool
	)
	doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return true
		}
		if strings.TrimSpace(th.Text()) != label {
			return true
		}
		value = strings.TrimSpace(td.Text())
		found = true
		return false
	})
	return value, found
}

func extractDescription(doc *goquery.Document) (string, bool) {
	node := doc.Find("#product_description ~ p").First()
	if node.Length() == 0 {
		return "", false
	}
	text := strings.TrimSpace(node.Text())
	return text, text != ""
}

func extractImage(doc *goquery.Document, resolver *Resolver) (string, bool) {
	node := firstOf(doc, ".thumbnail img", "#product_gallery img")
	if node.Length() == 0 {
		return "", false
	}
	src, ok := node.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", false
	}
	if resolver == nil {
		return strings.TrimSpace(src), true
	}
	return resolver.Resolve(src), true
}

func firstOf(doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, selector := range selectors {
		if node := doc.Find(selector).First(); node.Length() > 0 {
			return node
		}
	}
	return doc.Find(selectors[len(selectors)-1]).First()
}

// ParsePrice drops every character that is not a digit or a dot, so
// currency symbols and mis-decoded prefixes like "Â£" disappear.
func ParsePrice(text string) (float64, error) {
	clean := nonPriceChars.ReplaceAllString(text, "")
	if clean == "" {
		return 0, fmt.Errorf("price %q: %w", strings.TrimSpace(text), errBadNumber)
	}
	price, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", strings.TrimSpace(text), errBadNumber)
	}
	return price, nil
}

// ParseStock returns the first integer in the availability text, or 0.
func ParseStock(text string) int {
	match := firstInteger.FindString(text)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}

// RatingFromClass maps the first recognised star-rating class token to 1..5.
func RatingFromClass(class string) int {
	for _, token := range strings.Fields(class) {
		if n, ok := ratingWords[token]; ok {
			return n
		}
	}
	return 0
}
