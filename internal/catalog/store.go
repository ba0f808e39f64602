// Package catalog serves the book catalog from an in-memory snapshot that is
// refreshed in the background (stale-while-revalidate).
package catalog

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"stefabooks/internal/apperr"
	"stefabooks/internal/book"
)

// Loader fetches the authoritative book list.
type Loader interface {
	ListAll(ctx context.Context) ([]book.Book, error)
}

type snapshot struct {
	books    []book.Book
	byID     map[string]int
	loadedAt time.Time
	gen      uint64
}

// Store holds an immutable catalog snapshot. Reads never block on a refresh
// once the first snapshot exists. It is not a source of truth for stock.
type Store struct {
	loader         Loader
	ttl            time.Duration
	refreshTimeout time.Duration
	log            *slog.Logger
	now            func() time.Time

	snap  atomic.Pointer[snapshot]
	gen   atomic.Uint64
	group singleflight.Group
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Store) { s.refreshTimeout = d }
}

func NewStore(loader Loader, ttl time.Duration, log *slog.Logger, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		loader:         loader,
		ttl:            ttl,
		refreshTimeout: 30 * time.Second,
		log:            log,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate marks the current snapshot stale. The next read triggers a refresh.
func (s *Store) Invalidate() {
	s.gen.Add(1)
}

// Start refreshes the snapshot every TTL until ctx is cancelled.
func (s *Store) Start(ctx context.Context) {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAsync()
		}
	}
}

// Refresh reloads the snapshot and waits for the result. Concurrent callers
// share one load.
func (s *Store) Refresh(ctx context.Context) error {
	select {
	case res := <-s.group.DoChan("refresh", s.load):
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) refreshAsync() {
	// DoChan's result channel is buffered, so dropping it does not leak.
	_ = s.group.DoChan("refresh", s.load)
}

func (s *Store) load() (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()

	gen := s.gen.Load()
	started := s.now()
	books, err := s.loader.ListAll(ctx)
	if err != nil {
		s.log.Warn("catalog refresh failed, keeping previous snapshot", "error", err)
		return nil, err
	}

	byID := make(map[string]int, len(books))
	for i, b := range books {
		byID[b.ID] = i
	}
	s.snap.Store(&snapshot{books: books, byID: byID, loadedAt: started, gen: gen})
	s.log.Info("catalog refreshed", "books", len(books), "duration_ms", s.now().Sub(started).Milliseconds())
	return nil, nil
}

func (s *Store) stale(snap *snapshot) bool {
	return snap.gen != s.gen.Load() || s.now().Sub(snap.loadedAt) >= s.ttl
}

// current returns the snapshot, blocking only when none has been loaded yet.
func (s *Store) current(ctx context.Context) (*snapshot, error) {
	snap := s.snap.Load()
	if snap == nil {
		if err := s.Refresh(ctx); err != nil {
			return nil, apperr.ExternalService("catalog is temporarily unavailable", err)
		}
		return s.snap.Load(), nil
	}
	if s.stale(snap) {
		s.refreshAsync()
	}
	return snap, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (book.Book, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return book.Book{}, err
	}
	i, ok := snap.byID[id]
	if !ok {
		return book.Book{}, apperr.NotFound("book not found")
	}
	return snap.books[i], nil
}

// Search matches query case-insensitively against title, author, code and
// category. An empty query matches everything.
func (s *Store) Search(ctx context.Context, query string) ([]book.Book, error) {
	return s.List(ctx, Filter{Query: query})
}

func (s *Store) FilterByCategory(ctx context.Context, category string) ([]book.Book, error) {
	return s.List(ctx, Filter{Category: category})
}

func (s *Store) FilterByAvailability(ctx context.Context, available bool) ([]book.Book, error) {
	return s.List(ctx, Filter{Available: &available})
}

// Filter combines the catalog predicates. Zero fields match everything.
type Filter struct {
	Query     string
	Category  string
	Available *bool
}

func (f Filter) match(b book.Book, q string) bool {
	if f.Category != "" && !strings.EqualFold(b.Category, f.Category) {
		return false
	}
	if f.Available != nil && b.Available() != *f.Available {
		return false
	}
	if q == "" {
		return true
	}
	for _, field := range []string{b.Title, b.Author, b.Code, b.Category} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// List returns copies of the books matching f in catalog order.
func (s *Store) List(ctx context.Context, f Filter) ([]book.Book, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]book.Book, 0, len(snap.books))
	for _, b := range snap.books {
		if f.match(b, q) {
			out = append(out, b)
		}
	}
	return out, nil
}
