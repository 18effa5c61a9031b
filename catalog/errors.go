package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned by queries against a store that was never loaded.
	ErrNotLoaded = errors.New("catalog not loaded")
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("book not found")
	// ErrInvalidSort reports a sort key outside price|rating|title.
	ErrInvalidSort = errors.New("invalid sort: use price|rating|title with optional - prefix")
)

// QueryError reports a query parameter outside its accepted range.
type QueryError struct {
	Param string
	Value any
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid %s %v: %v", e.Param, e.Value, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
