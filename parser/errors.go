package parser

import (
	"errors"
	"fmt"
)

var (
	errMissing   = errors.New("element not found")
	errEmpty     = errors.New("element is empty")
	errNoSlug    = errors.New("url has no slug segment")
	errBadNumber = errors.New("not a number")
)

// ExtractionError reports a mandatory field that was missing or could not be
// parsed from a detail page.
type ExtractionError struct {
	Field string
	URL   string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s from %s: %v", e.Field, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
