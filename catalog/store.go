package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"costa-catalog/models"
	"costa-catalog/utils"
)

// ErrNotLoaded is returned by Store accessors before any catalog exists.
var ErrNotLoaded = errors.New("catalog: not loaded")

// Builder produces a new catalog; the pipeline runner implements it.
type Builder interface {
	Build(ctx context.Context) (*Catalog, error)
}

// Store publishes catalogs to readers. Refresh is the single writer and is
// serialised; readers load an immutable pointer and never block on it.
type Store struct {
	builder Builder
	logger  *utils.Logger

	mu      sync.Mutex
	current atomic.Pointer[Catalog]
	stale   atomic.Bool
}

// NewStore creates an empty Store.
func NewStore(builder Builder, logger *utils.Logger) *Store {
	return &Store{builder: builder, logger: logger}
}

// Refresh builds a new catalog and publishes it wholesale. When the build
// fails the previous catalog stays published, is marked stale and is
// returned together with the error. Without a previous catalog the result is
// nil and the error.
func (s *Store) Refresh(ctx context.Context) (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat, err := s.builder.Build(ctx)
	if err != nil {
		prev := s.current.Load()
		if prev == nil {
			s.logger.Error("[catalog] Refresh failed with no previous catalog: %v", err)
			return nil, fmt.Errorf("catalog: refresh: %w", err)
		}
		s.stale.Store(true)
		s.logger.Warn("[catalog] Refresh failed, serving previous catalog from %s as stale: %v",
			prev.GeneratedAt().Format("2006-01-02 15:04:05"), err)
		return prev, fmt.Errorf("catalog: refresh: %w", err)
	}

	s.current.Store(cat)
	s.stale.Store(false)
	s.logger.Info("[catalog] Published %d units, %d developments, %d builders",
		len(cat.units), len(cat.developments), len(cat.builders))
	return cat, nil
}

// Seed publishes a catalog recovered from a previous run, marked stale until
// the next successful Refresh. It is ignored once a catalog is published.
func (s *Store) Seed(cat *Catalog) bool {
	if cat == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Load() != nil {
		return false
	}
	s.current.Store(cat)
	s.stale.Store(true)
	s.logger.Info("[catalog] Seeded previous catalog from %s", cat.GeneratedAt().Format("2006-01-02 15:04:05"))
	return true
}

// Invalidate drops the published catalog. Readers get ErrNotLoaded until
// the next Refresh or Seed.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(nil)
	s.stale.Store(false)
	s.logger.Info("[catalog] Invalidated")
}

// Current returns the published catalog.
func (s *Store) Current() (*Catalog, error) {
	cat := s.current.Load()
	if cat == nil {
		return nil, ErrNotLoaded
	}
	return cat, nil
}

// Stale reports whether readers are being served outdated data, either
// because the last refresh failed or because the catalog itself holds
// fallback feed snapshots.
func (s *Store) Stale() bool {
	if s.stale.Load() {
		return true
	}
	cat := s.current.Load()
	return cat != nil && cat.Stale()
}

// AllDevelopments returns every development of the published catalog.
func (s *Store) AllDevelopments() ([]models.Development, error) {
	cat, err := s.Current()
	if err != nil {
		return nil, err
	}
	return cat.AllDevelopments(), nil
}

// AllBuilders returns every builder of the published catalog.
func (s *Store) AllBuilders() ([]models.Builder, error) {
	cat, err := s.Current()
	if err != nil {
		return nil, err
	}
	return cat.AllBuilders(), nil
}

// DevelopmentStats returns the cached headline counts.
func (s *Store) DevelopmentStats() (models.DevelopmentStats, error) {
	cat, err := s.Current()
	if err != nil {
		return models.DevelopmentStats{}, err
	}
	return cat.DevelopmentStats(), nil
}

// LandPlots returns plots priced at or above minPrice.
func (s *Store) LandPlots(minPrice int) ([]models.UnifiedProperty, error) {
	cat, err := s.Current()
	if err != nil {
		return nil, err
	}
	return cat.LandPlots(minPrice), nil
}

// XMLFeed returns the ungrouped listings.
func (s *Store) XMLFeed() ([]models.UnifiedProperty, error) {
	cat, err := s.Current()
	if err != nil {
		return nil, err
	}
	return cat.XMLFeed(), nil
}
