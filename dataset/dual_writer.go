package dataset

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/books-harvest/models"
)

// DualWriter outputs to both CSV and JSON formats simultaneously.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter creates a writer for both CSV and JSONL output.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, err
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Abort()
		return nil, err
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Write writes books to both outputs.
func (dw *DualWriter) Write(books []*models.Book) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(books); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	if err := dw.jsonWriter.Write(books); err != nil {
		return fmt.Errorf("json write: %w", err)
	}
	return nil
}

// Close publishes the CSV file first, then the JSONL file. If the CSV
// commit fails the JSONL file is discarded.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Close(); err != nil {
		dw.jsonWriter.Abort()
		return fmt.Errorf("csv close: %w", err)
	}
	if err := dw.jsonWriter.Close(); err != nil {
		return fmt.Errorf("json close: %w", err)
	}
	return nil
}

// Abort discards both staged files.
func (dw *DualWriter) Abort() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return errors.Join(dw.csvWriter.Abort(), dw.jsonWriter.Abort())
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
