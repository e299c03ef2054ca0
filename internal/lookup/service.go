package lookup

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/models"
)

const (
	// DefaultLimit caps autocomplete result sets.
	DefaultLimit = 20

	slipCacheTTL     = 10 * time.Minute
	slipCacheCleanup = 30 * time.Minute
)

// Service answers autocomplete queries from the JSON tables first and
// falls back to the MySQL mirror when a query misses. It also caches
// remote field-slip lookups so repeated verification of the same code
// does not hammer the upstream API.
type Service struct {
	tables *Tables
	repo   *Repository
	slips  *cache.Cache
	log    logger.Logger
}

// NewService builds a lookup service. repo may be nil when the MySQL
// mirror is not configured.
func NewService(tables *Tables, repo *Repository, log logger.Logger) *Service {
	return &Service{
		tables: tables,
		repo:   repo,
		slips:  cache.New(slipCacheTTL, slipCacheCleanup),
		log:    log,
	}
}

// Locations returns location candidates for q.
func (s *Service) Locations(ctx context.Context, q string, limit int) ([]models.LocationRef, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if out := s.tables.SearchLocations(q, limit); len(out) > 0 {
		return out, nil
	}
	if s.repo == nil {
		return nil, nil
	}

	out, err := s.repo.SearchLocations(ctx, q, limit)
	if err != nil {
		s.log.Warn("Location DB lookup failed, serving table results only",
			logger.String("query", q),
			logger.Error(err),
		)
		return nil, nil
	}
	return out, nil
}

// Names returns taxon name candidates for q.
func (s *Service) Names(ctx context.Context, q string, limit int) ([]models.NameRef, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if out := s.tables.SearchNames(q, limit); len(out) > 0 {
		return out, nil
	}
	if s.repo == nil {
		return nil, nil
	}

	out, err := s.repo.SearchNames(ctx, q, limit)
	if err != nil {
		s.log.Warn("Name DB lookup failed, serving table results only",
			logger.String("query", q),
			logger.Error(err),
		)
		return nil, nil
	}
	return out, nil
}

// ForayDate returns the event date recorded for a foray location.
func (s *Service) ForayDate(location string) (string, bool) {
	return s.tables.ForayDate(location)
}

// CachedFieldSlip returns a previously cached field-slip lookup result
// for code. The second return is false on a miss. A cached nil means the
// code was looked up and did not exist.
func (s *Service) CachedFieldSlip(code string) (any, bool) {
	return s.slips.Get(code)
}

// StoreFieldSlip caches a field-slip lookup result for code.
func (s *Service) StoreFieldSlip(code string, v any) {
	s.slips.Set(code, v, cache.DefaultExpiration)
}

// InvalidateFieldSlip drops the cached result for code, used after the
// slip is created or relinked.
func (s *Service) InvalidateFieldSlip(code string) {
	s.slips.Delete(code)
}
