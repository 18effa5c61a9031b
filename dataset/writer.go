package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aluiziolira/books-harvest/models"
)

// Output formats accepted by NewWriter.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatDual = "dual"
)

// Writer stages records and publishes them on Close. Abort drops everything
// written so far.
type Writer interface {
	Write(books []*models.Book) error
	Close() error
	Abort() error
	Validate() error
}

// NewWriter returns the writer for format. The dual format writes filename
// as CSV and a JSONL sibling with the same stem.
func NewWriter(format, filename string) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return NewCSVWriter(filename)
	case FormatJSON:
		return NewJSONWriter(filename)
	case FormatDual:
		return NewDualWriter(filename, JSONLPath(filename))
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// JSONLPath derives the JSONL companion of a CSV path.
func JSONLPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".jsonl"
}

// ErrNoRecords is returned by Publish when there is nothing to write.
var ErrNoRecords = errors.New("no records to publish")

// Publish writes every book and publishes the file. On any failure the
// staged output is discarded and the previous dataset stays in place.
func Publish(w Writer, books []*models.Book) error {
	if !slices.ContainsFunc(books, func(b *models.Book) bool { return b != nil }) {
		w.Abort()
		return ErrNoRecords
	}
	if err := w.Write(books); err != nil {
		w.Abort()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return w.Validate()
}
