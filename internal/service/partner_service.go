package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PartnerStore is the partner-offer maintenance surface
type PartnerStore interface {
	DeactivateStale(ctx context.Context, cutoff time.Time) (int, error)
}

// PartnerService keeps partner offers honest: entries not refreshed by
// their exchanger within the configured lifetime stop being served.
type PartnerService struct {
	store    PartnerStore
	lifetime time.Duration
	logger   *zap.Logger
}

// NewPartnerService creates a partner service
func NewPartnerService(store PartnerStore, lifetime time.Duration, logger *zap.Logger) *PartnerService {
	if lifetime <= 0 {
		lifetime = 72 * time.Hour
	}
	return &PartnerService{
		store:    store,
		lifetime: lifetime,
		logger:   logger,
	}
}

// DeactivateStale disables every partner offer older than the lifetime
func (s *PartnerService) DeactivateStale(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.lifetime)
	count, err := s.store.DeactivateStale(ctx, cutoff)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Info("Deactivated stale partner offers", zap.Int("count", count))
	}
	return nil
}
