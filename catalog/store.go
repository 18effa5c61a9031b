// Package catalog serves read-only queries over a harvested dataset.
package catalog

import (
	"log/slog"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/books-harvest/dataset"
	"github.com/aluiziolira/books-harvest/models"
)

const defaultCacheSize = 256

// Store holds one loaded snapshot of the dataset. It is safe for concurrent
// use; Reload swaps the snapshot atomically with respect to queries.
type Store struct {
	path   string
	cache  *lru.Cache[queryKey, Page]
	logger *slog.Logger

	mu     sync.RWMutex
	books  []*models.Book
	byID   map[string]*models.Book
	loaded bool
	stats  dataset.ReadStats
}

// NewStore returns an unloaded store over the dataset at path. A cacheSize
// <= 0 uses the default.
func NewStore(path string, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[queryKey, Page](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		path:   path,
		cache:  cache,
		logger: slog.Default().With(slog.String("component", "catalog")),
	}, nil
}

// Load reads the dataset on first use. Subsequent calls are no-ops.
func (s *Store) Load() error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	return s.Reload()
}

// Reload re-reads the dataset and drops cached results. On error the
// previous snapshot stays in service.
func (s *Store) Reload() error {
	books, stats, err := dataset.ReadCSV(s.path)
	if err != nil {
		return err
	}

	byID := make(map[string]*models.Book, len(books))
	for _, b := range books {
		if _, ok := byID[b.ID]; !ok {
			byID[b.ID] = b
		}
	}

	s.mu.Lock()
	s.books = books
	s.byID = byID
	s.stats = stats
	s.loaded = true
	s.cache.Purge()
	s.mu.Unlock()

	s.logger.Info("dataset loaded",
		slog.String("path", s.path),
		slog.Int("rows", stats.Rows),
		slog.Int("loaded", stats.Loaded),
		slog.Int("skipped", stats.Skipped),
	)
	return nil
}

// Query runs q against the loaded snapshot.
func (s *Store) Query(q Query) (Page, error) {
	key, err := q.normalize()
	if err != nil {
		return Page{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return Page{}, ErrNotLoaded
	}
	if page, ok := s.cache.Get(key); ok {
		return page, nil
	}
	page := key.run(s.books)
	s.cache.Add(key, page)
	return page, nil
}

// Get returns the first book with the given id.
func (s *Store) Get(id string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	b, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// Categories lists the distinct non-empty categories in sorted order.
func (s *Store) Categories() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return nil, ErrNotLoaded
	}
	seen := make(map[string]struct{})
	var out []string
	for _, b := range s.books {
		if b.Category == "" {
			continue
		}
		if _, ok := seen[b.Category]; ok {
			continue
		}
		seen[b.Category] = struct{}{}
		out = append(out, b.Category)
	}
	slices.Sort(out)
	return out, nil
}

// Len reports how many books are loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}

// Stats describes the last successful load.
func (s *Store) Stats() dataset.ReadStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
