// Package models defines data structures for the harvester.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Book is one catalog item harvested from a detail page. Optional fields
// (Category, UPC, Description, ImageURL) are empty when the page did not
// carry them.
type Book struct {
	ID             string  `csv:"id" json:"id"`
	Title          string  `csv:"title" json:"title"`
	Price          float64 `csv:"price" json:"price"`
	Stock          int     `csv:"stock" json:"stock"`
	Rating         int     `csv:"rating" json:"rating"`
	Category       string  `csv:"category" json:"category,omitempty"`
	ProductPageURL string  `csv:"product_page_url" json:"product_page_url"`
	UPC            string  `csv:"upc" json:"upc,omitempty"`
	Description    string  `csv:"description" json:"description,omitempty"`
	ImageURL       string  `csv:"image_url" json:"image_url,omitempty"`
}

// Validate checks the record invariants shared by the extractor and the
// dataset reader.
func (b *Book) Validate() error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("book missing id")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book %s missing title", b.ID)
	}
	if strings.TrimSpace(b.ProductPageURL) == "" {
		return fmt.Errorf("book %s missing product page url", b.ID)
	}
	if b.Price < 0 {
		return fmt.Errorf("book %s has negative price %v", b.ID, b.Price)
	}
	if b.Stock < 0 {
		return fmt.Errorf("book %s has negative stock %d", b.ID, b.Stock)
	}
	if b.Rating < 0 || b.Rating > 5 {
		return fmt.Errorf("book %s rating %d out of range", b.ID, b.Rating)
	}
	return nil
}

// Failure kinds recorded in the harvest failure report.
const (
	FailureTransport     = "transport"
	FailureExtraction    = "extraction"
	FailureInvalidRecord = "invalid_record"
)

// ItemFailure records a detail page that could not be turned into a Book.
type ItemFailure struct {
	URL  string
	Kind string
	Err  error
}

func (f ItemFailure) String() string {
	return fmt.Sprintf("%s [%s]: %v", f.URL, f.Kind, f.Err)
}

// HarvestResult holds the overall result of one harvest run.
type HarvestResult struct {
	RunID          string
	Books          []*Book
	Failures       []ItemFailure
	StartTime      time.Time
	EndTime        time.Time
	LinkCount      int
	PageCount      int
	RequestCount   int
	RetryCount     int
	DuplicateCount int
	ErrorsByType   map[string]int

	// Partial is set when the run did not cover the whole catalog
	// (page cap reached, best-effort walk failure, interruption).
	Partial       bool
	PartialReason string
}

// Succeeded returns the number of records kept by the run.
func (r *HarvestResult) Succeeded() int {
	return len(r.Books)
}

// Failed returns the number of detail pages that produced no record.
func (r *HarvestResult) Failed() int {
	return len(r.Failures)
}
