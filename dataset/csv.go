// Package dataset persists harvested books as a flat CSV file, the handoff
// point between the harvester and the query layer.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/books-harvest/models"
)

// Header is the fixed column order of the dataset file.
var Header = []string{
	"id",
	"title",
	"price",
	"stock",
	"rating",
	"category",
	"product_page_url",
	"upc",
	"description",
	"image_url",
}

var requiredColumns = []string{"id", "title", "price", "product_page_url"}

// CSVWriter writes records to CSV. Rows go to a staging file that replaces
// the destination on Close.
type CSVWriter struct {
	path   string
	file   *atomicFile
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := createAtomic(filename)
	if err != nil {
		return nil, &IOError{Op: "create", Path: filename, Err: err}
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(Header); err != nil {
		f.abort()
		return nil, &IOError{Op: "write header", Path: filename, Err: err}
	}

	return &CSVWriter{
		path:   filename,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends books to the staged CSV output.
func (cw *CSVWriter) Write(books []*models.Book) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, book := range books {
		if book == nil {
			continue
		}
		if err := cw.writer.Write(encodeRow(book)); err != nil {
			return &IOError{Op: "write record", Path: cw.path, Err: err}
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return &IOError{Op: "flush records", Path: cw.path, Err: err}
	}
	return nil
}

// Close flushes the staged file and moves it over the destination.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.abort()
		return &IOError{Op: "flush", Path: cw.path, Err: err}
	}
	if err := cw.file.commit(); err != nil {
		return &IOError{Op: "commit", Path: cw.path, Err: err}
	}
	return nil
}

// Abort discards the staged file and leaves any previous dataset in place.
func (cw *CSVWriter) Abort() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.file.abort()
}

// Validate ensures the published file exists and has content.
func (cw *CSVWriter) Validate() error {
	if err := validateNonEmpty(cw.path); err != nil {
		return &IOError{Op: "validate", Path: cw.path, Err: err}
	}
	return nil
}

func encodeRow(book *models.Book) []string {
	return []string{
		book.ID,
		book.Title,
		strconv.FormatFloat(book.Price, 'f', -1, 64),
		strconv.Itoa(book.Stock),
		strconv.Itoa(book.Rating),
		book.Category,
		book.ProductPageURL,
		book.UPC,
		book.Description,
		book.ImageURL,
	}
}

// ReadStats describes a dataset load.
type ReadStats struct {
	Rows    int
	Loaded  int
	Skipped int
}

// ReadCSV loads every valid record from filename. Rows that do not form a
// valid Book are skipped and counted; a missing file, unreadable content or
// a header without the required columns is an *IOError.
func ReadCSV(filename string) ([]*models.Book, ReadStats, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, ReadStats{}, &IOError{Op: "open", Path: filename, Err: err}
	}
	defer f.Close()

	books, stats, err := decode(f)
	if err != nil {
		return nil, stats, &IOError{Op: "read", Path: filename, Err: err}
	}
	return books, stats, nil
}

func decode(r io.Reader) ([]*models.Book, ReadStats, error) {
	var stats ReadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, errors.New("missing header row")
		}
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		columns[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, stats, fmt.Errorf("header missing column %q", name)
		}
	}

	var books []*models.Book
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			stats.Rows++
			stats.Skipped++
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read row %d: %w", stats.Rows+1, err)
		}
		stats.Rows++

		book, err := decodeRow(row, columns)
		if err != nil {
			stats.Skipped++
			continue
		}
		books = append(books, book)
		stats.Loaded++
	}
	return books, stats, nil
}

func decodeRow(row []string, columns map[string]int) (*models.Book, error) {
	cell := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	price, err := parseFloatCell(cell("price"))
	if err != nil {
		return nil, err
	}
	stock, err := parseIntCell(cell("stock"))
	if err != nil {
		return nil, err
	}
	rating, err := parseIntCell(cell("rating"))
	if err != nil {
		return nil, err
	}

	book := &models.Book{
		ID:             cell("id"),
		Title:          cell("title"),
		Price:          price,
		Stock:          stock,
		Rating:         rating,
		Category:       cell("category"),
		ProductPageURL: cell("product_page_url"),
		UPC:            cell("upc"),
		Description:    cell("description"),
		ImageURL:       cell("image_url"),
	}
	if err := book.Validate(); err != nil {
		return nil, err
	}
	return book, nil
}

func parseFloatCell(value string) (float64, error) {
	if value == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("price %q is not finite", value)
	}
	return f, nil
}

func parseIntCell(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
