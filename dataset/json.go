package dataset

import (
	"bufio"
	"encoding/json"
	"sync"

	"github.com/aluiziolira/books-harvest/models"
)

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	path    string
	file    *atomicFile
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := createAtomic(filename)
	if err != nil {
		return nil, &IOError{Op: "create", Path: filename, Err: err}
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		path:    filename,
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends books in JSONL format.
func (jw *JSONWriter) Write(books []*models.Book) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, book := range books {
		if book == nil {
			continue
		}
		if err := jw.encoder.Encode(book); err != nil {
			return &IOError{Op: "encode record", Path: jw.path, Err: err}
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return &IOError{Op: "flush records", Path: jw.path, Err: err}
	}
	return nil
}

// Close flushes buffers and moves the staged file over the destination.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		jw.file.abort()
		return &IOError{Op: "flush", Path: jw.path, Err: err}
	}
	if err := jw.file.commit(); err != nil {
		return &IOError{Op: "commit", Path: jw.path, Err: err}
	}
	return nil
}

// Abort discards the staged file.
func (jw *JSONWriter) Abort() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.file.abort()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	if err := validateNonEmpty(jw.path); err != nil {
		return &IOError{Op: "validate", Path: jw.path, Err: err}
	}
	return nil
}
