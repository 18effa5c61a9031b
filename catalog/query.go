package catalog

import (
	"cmp"
	"errors"
	"slices"
	"strings"

	"github.com/aluiziolira/books-harvest/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Query selects, orders and pages books. Nil range bounds are unset.
// Sort is one of price, rating or title, prefixed with - for descending;
// empty keeps dataset order.
type Query struct {
	Text      string
	Category  string
	MinPrice  *float64
	MaxPrice  *float64
	MinRating *int
	MaxRating *int
	Sort      string
	Page      int
	PageSize  int
}

// Page is one slice of a query result.
type Page struct {
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Items    []*models.Book `json:"items"`
}

// queryKey is the comparable form of a normalized Query used as cache key.
type queryKey struct {
	text, category       string
	minPrice, maxPrice   float64
	hasMinP, hasMaxP     bool
	minRating, maxRating int
	hasMinR, hasMaxR     bool
	sortField            string
	descending           bool
	page, pageSize       int
}

func (q Query) normalize() (queryKey, error) {
	key := queryKey{
		text:     strings.ToLower(strings.TrimSpace(q.Text)),
		category: strings.ToLower(strings.TrimSpace(q.Category)),
		page:     q.Page,
		pageSize: q.PageSize,
	}
	if key.page == 0 {
		key.page = 1
	}
	if key.pageSize == 0 {
		key.pageSize = DefaultPageSize
	}
	if key.page < 1 {
		return key, &QueryError{Param: "page", Value: q.Page, Err: errors.New("must be >= 1")}
	}
	if key.pageSize < 1 || key.pageSize > MaxPageSize {
		return key, &QueryError{Param: "page_size", Value: q.PageSize, Err: errors.New("must be within 1..200")}
	}

	if q.MinPrice != nil {
		if *q.MinPrice < 0 {
			return key, &QueryError{Param: "min_price", Value: *q.MinPrice, Err: errors.New("must be >= 0")}
		}
		key.minPrice, key.hasMinP = *q.MinPrice, true
	}
	if q.MaxPrice != nil {
		if *q.MaxPrice < 0 {
			return key, &QueryError{Param: "max_price", Value: *q.MaxPrice, Err: errors.New("must be >= 0")}
		}
		key.maxPrice, key.hasMaxP = *q.MaxPrice, true
	}
	if q.MinRating != nil {
		if *q.MinRating < 0 || *q.MinRating > 5 {
			return key, &QueryError{Param: "min_rating", Value: *q.MinRating, Err: errors.New("must be within 0..5")}
		}
		key.minRating, key.hasMinR = *q.MinRating, true
	}
	if q.MaxRating != nil {
		if *q.MaxRating < 0 || *q.MaxRating > 5 {
			return key, &QueryError{Param: "max_rating", Value: *q.MaxRating, Err: errors.New("must be within 0..5")}
		}
		key.maxRating, key.hasMaxR = *q.MaxRating, true
	}

	if s := strings.TrimSpace(q.Sort); s != "" {
		key.descending = strings.HasPrefix(s, "-")
		key.sortField = strings.TrimLeft(s, "-")
		switch key.sortField {
		case "price", "rating", "title":
		default:
			return key, &QueryError{Param: "sort", Value: q.Sort, Err: ErrInvalidSort}
		}
	}
	return key, nil
}

func (k queryKey) matches(b *models.Book) bool {
	if k.text != "" &&
		!strings.Contains(strings.ToLower(b.Title), k.text) &&
		!strings.Contains(strings.ToLower(b.Description), k.text) {
		return false
	}
	if k.category != "" && strings.ToLower(b.Category) != k.category {
		return false
	}
	if k.hasMinP && b.Price < k.minPrice {
		return false
	}
	if k.hasMaxP && b.Price > k.maxPrice {
		return false
	}
	if k.hasMinR && b.Rating < k.minRating {
		return false
	}
	if k.hasMaxR && b.Rating > k.maxRating {
		return false
	}
	return true
}

func (k queryKey) compare(a, b *models.Book) int {
	var c int
	switch k.sortField {
	case "price":
		c = cmp.Compare(a.Price, b.Price)
	case "rating":
		c = cmp.Compare(a.Rating, b.Rating)
	case "title":
		c = strings.Compare(a.Title, b.Title)
	}
	if k.descending {
		return -c
	}
	return c
}

// run filters, sorts and pages books. Ties keep dataset order in both
// directions.
func (k queryKey) run(books []*models.Book) Page {
	matched := make([]*models.Book, 0, len(books))
	for _, b := range books {
		if k.matches(b) {
			matched = append(matched, b)
		}
	}
	if k.sortField != "" {
		slices.SortStableFunc(matched, k.compare)
	}

	page := Page{Total: len(matched), Page: k.page, PageSize: k.pageSize, Items: []*models.Book{}}
	start := (k.page - 1) * k.pageSize
	if start >= len(matched) {
		return page
	}
	end := min(start+k.pageSize, len(matched))
	page.Items = matched[start:end]
	return page
}
