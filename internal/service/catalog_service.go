package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/cache"
	"github.com/yourorg/exchange-aggregator/internal/model"
)

const catalogCacheKey = "catalog:v1"

// CatalogSource builds catalog snapshots from the relational store
type CatalogSource interface {
	GetCashCatalog(ctx context.Context) ([]model.CatalogEntry, error)
	GetNonCashCatalog(ctx context.Context) ([]model.CatalogEntry, error)
}

// CatalogService serves the TTL-boxed catalog snapshot the parser works
// against. Concurrent callers during a rebuild may recompute the
// snapshot redundantly; that trades a little work for lock-free reads.
type CatalogService struct {
	source CatalogSource
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService creates a catalog service
func NewCatalogService(source CatalogSource, store cache.Store, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &CatalogService{
		source: source,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// GetCatalog returns the current catalog snapshot, rebuilding it from
// the store when the cached copy has expired. It fails only when both
// the cache and the backing store are unavailable.
func (s *CatalogService) GetCatalog(ctx context.Context) (*model.Catalog, error) {
	cached, ok, err := s.store.Get(ctx, catalogCacheKey)
	if err != nil {
		s.logger.Warn("Catalog cache read failed, rebuilding from store", zap.Error(err))
	} else if ok {
		var catalog model.Catalog
		if err := json.Unmarshal(cached, &catalog); err == nil {
			return &catalog, nil
		}
		s.logger.Warn("Discarding undecodable catalog cache entry", zap.Error(err))
	}

	cash, err := s.source.GetCashCatalog(ctx)
	if err != nil {
		return nil, err
	}
	nonCash, err := s.source.GetNonCashCatalog(ctx)
	if err != nil {
		return nil, err
	}

	catalog := &model.Catalog{Cash: cash, NonCash: nonCash}

	if encoded, err := json.Marshal(catalog); err == nil {
		if err := s.store.SetWithTTL(ctx, catalogCacheKey, encoded, s.ttl); err != nil {
			s.logger.Warn("Failed to cache catalog snapshot", zap.Error(err))
		}
	}

	s.logger.Debug("Rebuilt catalog snapshot",
		zap.Int("cash_entries", len(cash)),
		zap.Int("non_cash_entries", len(nonCash)))
	return catalog, nil
}
