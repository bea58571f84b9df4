package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// PartnerRepository handles manually configured partner offers
type PartnerRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPartnerRepository creates a new partner repository
func NewPartnerRepository(db *sqlx.DB, logger *zap.Logger) *PartnerRepository {
	return &PartnerRepository{
		db:     db,
		logger: logger,
	}
}

// FindForDirection returns active partner offers for a pair in a city:
// offers configured for the city itself, plus country-level offers of
// the city's country that do not exclude the city.
func (r *PartnerRepository) FindForDirection(ctx context.Context, fromCode, toCode, cityCode string) ([]model.OfferCandidate, error) {
	query := `
		SELECT po.id AS offer_id, e.id AS exchanger_id, e.name AS exchanger_name,
		       e.en_name, e.partner_link, e.is_vip,
		       po.in_count, po.out_count, po.min_amount, po.max_amount,
		       NULL AS fee, NULL AS params,
		       ci.name AS city_name, ci.code AS city_code, co.name AS country_name
		FROM partner_offers po
		JOIN exchangers e ON e.id = po.exchanger_id
		JOIN directions d ON d.id = po.direction_id
		JOIN cities ci ON ci.code = $3
		JOIN countries co ON co.id = ci.country_id
		WHERE d.from_code = $1 AND d.to_code = $2
		  AND po.is_active = TRUE AND e.is_active = TRUE
		  AND (
			po.city_id = ci.id
			OR (
				po.country_id = ci.country_id
				AND NOT EXISTS (
					SELECT 1 FROM partner_excluded_cities pec
					WHERE pec.partner_offer_id = po.id AND pec.city_id = ci.id
				)
			)
		  )
	`

	var candidates []model.OfferCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, fromCode, toCode, cityCode); err != nil {
		r.logger.Error("Failed to find partner offers",
			zap.Error(err),
			zap.String("from", fromCode),
			zap.String("to", toCode),
			zap.String("city", cityCode))
		return nil, err
	}
	for i := range candidates {
		candidates[i].Source = model.SourcePartner
	}
	return candidates, nil
}

// DeactivateStale flips partner offers whose last update is older than
// the cutoff. Returns the number of offers deactivated.
func (r *PartnerRepository) DeactivateStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE partner_offers
		SET is_active = FALSE
		WHERE is_active = TRUE AND time_update < $1
	`, cutoff)
	if err != nil {
		r.logger.Error("Failed to deactivate stale partner offers", zap.Error(err))
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
