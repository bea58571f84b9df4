package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// DirectionLister enumerates directions and stores reference courses
type DirectionLister interface {
	List(ctx context.Context) ([]model.Direction, error)
	UpdateReferenceCourse(ctx context.Context, directionID int, course decimal.Decimal) error
}

// SpotPriceSource serves external market rates for a currency pair
type SpotPriceSource interface {
	GetSpotPrice(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// RateService refreshes per-direction reference courses from the
// external spot-price source. The courses are informational; offer
// ranking never depends on them.
type RateService struct {
	directions DirectionLister
	source     SpotPriceSource
	pause      time.Duration
	logger     *zap.Logger
}

// NewRateService creates a rate service
func NewRateService(directions DirectionLister, source SpotPriceSource, logger *zap.Logger) *RateService {
	return &RateService{
		directions: directions,
		source:     source,
		pause:      400 * time.Millisecond,
		logger:     logger,
	}
}

// RefreshReferenceCourses walks every direction and stores the current
// spot price. Per-direction failures are logged and skipped; a paced
// delay between requests keeps the source's rate limiter happy.
func (s *RateService) RefreshReferenceCourses(ctx context.Context) error {
	directions, err := s.directions.List(ctx)
	if err != nil {
		return err
	}

	updated := 0
	for _, d := range directions {
		price, err := s.source.GetSpotPrice(ctx, d.FromCode, d.ToCode)
		if err != nil {
			s.logger.Debug("Skipping reference course",
				zap.Error(err),
				zap.String("from", d.FromCode),
				zap.String("to", d.ToCode))
		} else if err := s.directions.UpdateReferenceCourse(ctx, d.ID, price); err != nil {
			s.logger.Error("Failed to store reference course",
				zap.Error(err), zap.Int("direction_id", d.ID))
		} else {
			updated++
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pause):
		}
	}

	s.logger.Info("Reference courses refreshed",
		zap.Int("directions", len(directions)),
		zap.Int("updated", updated))
	return nil
}
