package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// OfferRepository handles database operations for ready offers. The
// reconcile and upsert methods are the only writers of the
// ready_offers table.
type OfferRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewOfferRepository creates a new offer repository
func NewOfferRepository(db *sqlx.DB, logger *zap.Logger) *OfferRepository {
	return &OfferRepository{
		db:     db,
		logger: logger,
	}
}

// ReconcileCash bulk-upserts the parsed cash offers and deactivates
// every cash offer of the exchanger not touched by this run, in one
// transaction so a partial write never shows offers as deactivated
// mid-sync. Returns (upserted, deactivated).
func (r *OfferRepository) ReconcileCash(
	ctx context.Context,
	exchangerID int,
	offers []model.RawOffer,
	syncTime time.Time,
) (int, int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return 0, 0, err
	}
	defer tx.Rollback()

	if err := r.upsertCash(ctx, tx, exchangerID, offers, syncTime); err != nil {
		return 0, 0, err
	}

	deactivated, err := r.sweepStale(ctx, tx, exchangerID, syncTime, true)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit cash reconcile", zap.Error(err))
		return 0, 0, err
	}
	return len(offers), deactivated, nil
}

// ReconcileNonCash mirrors ReconcileCash for city-less offers
func (r *OfferRepository) ReconcileNonCash(
	ctx context.Context,
	exchangerID int,
	offers []model.RawOffer,
	syncTime time.Time,
) (int, int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return 0, 0, err
	}
	defer tx.Rollback()

	if err := r.upsertNonCash(ctx, tx, exchangerID, offers, syncTime); err != nil {
		return 0, 0, err
	}

	deactivated, err := r.sweepStale(ctx, tx, exchangerID, syncTime, false)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit non-cash reconcile", zap.Error(err))
		return 0, 0, err
	}
	return len(offers), deactivated, nil
}

// UpsertCash writes cash offers without sweeping untouched rows. Used
// by the black-list rescan, which parses only a subset of the catalog
// and therefore must not treat absent rows as stale.
func (r *OfferRepository) UpsertCash(
	ctx context.Context,
	exchangerID int,
	offers []model.RawOffer,
	syncTime time.Time,
) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return 0, err
	}
	defer tx.Rollback()

	if err := r.upsertCash(ctx, tx, exchangerID, offers, syncTime); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit cash upsert", zap.Error(err))
		return 0, err
	}
	return len(offers), nil
}

// UpsertNonCash mirrors UpsertCash for city-less offers
func (r *OfferRepository) UpsertNonCash(
	ctx context.Context,
	exchangerID int,
	offers []model.RawOffer,
	syncTime time.Time,
) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return 0, err
	}
	defer tx.Rollback()

	if err := r.upsertNonCash(ctx, tx, exchangerID, offers, syncTime); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit non-cash upsert", zap.Error(err))
		return 0, err
	}
	return len(offers), nil
}

func (r *OfferRepository) upsertCash(
	ctx context.Context,
	tx *sqlx.Tx,
	exchangerID int,
	offers []model.RawOffer,
	syncTime time.Time,
) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO ready_offers
			(exchanger_id, direction_id, city_id, in_count, out_count,
			 min_amount, max_amount, fee, params, is_active, time_action)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10)
		ON CONFLICT (exchanger_id, direction_id, city_id) WHERE city_id IS NOT NULL
		DO UPDATE SET
			in_count = EXCLUDED.in_count,
			out_count = EXCLUDED.out_count,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			fee = EXCLUDED.fee,
			params = EXCLUDED.params,
			is_active = TRUE,
			time_action = EXCLUDED.time_action
	`)
	if err != nil {
		r.logger.Error("Failed to prepare cash upsert", zap.Error(err))
		return err
	}
	defer stmt.Close()

	for _, offer := range offers {
		_, err = stmt.ExecContext(ctx,
			exchangerID, offer.DirectionID, offer.CityID,
			offer.In, offer.Out, offer.MinAmount, offer.MaxAmount,
			offer.Fee, offer.Params, syncTime)
		if err != nil {
			r.logger.Error("Failed to upsert cash offer",
				zap.Error(err),
				zap.Int("exchanger_id", exchangerID),
				zap.Int("direction_id", offer.DirectionID))
			return err
		}
	}
	return nil
}

func (r *OfferRepository) upsertNonCash(
	ctx context.Context,
	tx *sqlx.Tx,
	exchangerID int,
	offers []model.RawOffer,
	syncTime time.Time,
) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO ready_offers
			(exchanger_id, direction_id, city_id, in_count, out_count,
			 min_amount, max_amount, is_active, time_action)
		VALUES ($1, $2, NULL, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (exchanger_id, direction_id) WHERE city_id IS NULL
		DO UPDATE SET
			in_count = EXCLUDED.in_count,
			out_count = EXCLUDED.out_count,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			is_active = TRUE,
			time_action = EXCLUDED.time_action
	`)
	if err != nil {
		r.logger.Error("Failed to prepare non-cash upsert", zap.Error(err))
		return err
	}
	defer stmt.Close()

	for _, offer := range offers {
		_, err = stmt.ExecContext(ctx,
			exchangerID, offer.DirectionID,
			offer.In, offer.Out, offer.MinAmount, offer.MaxAmount, syncTime)
		if err != nil {
			r.logger.Error("Failed to upsert non-cash offer",
				zap.Error(err),
				zap.Int("exchanger_id", exchangerID),
				zap.Int("direction_id", offer.DirectionID))
			return err
		}
	}
	return nil
}

// sweepStale flips is_active=false on every offer of the exchanger in
// the given segment whose freshness watermark differs from this run's.
func (r *OfferRepository) sweepStale(
	ctx context.Context,
	tx *sqlx.Tx,
	exchangerID int,
	syncTime time.Time,
	cash bool,
) (int, error) {
	cityClause := "city_id IS NULL"
	if cash {
		cityClause = "city_id IS NOT NULL"
	}
	query := `
		UPDATE ready_offers
		SET is_active = FALSE
		WHERE exchanger_id = $1 AND is_active = TRUE AND time_action <> $2 AND ` + cityClause

	res, err := tx.ExecContext(ctx, query, exchangerID, syncTime)
	if err != nil {
		r.logger.Error("Failed to sweep stale offers",
			zap.Error(err),
			zap.Int("exchanger_id", exchangerID))
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FindActive returns the active offers for a currency pair, restricted
// to a city when cityCode is non-nil, joined with exchanger and
// location metadata. Offers of inactive exchangers are excluded.
func (r *OfferRepository) FindActive(ctx context.Context, fromCode, toCode string, cityCode *string) ([]model.OfferCandidate, error) {
	query := `
		SELECT ro.id AS offer_id, e.id AS exchanger_id, e.name AS exchanger_name,
		       e.en_name, e.partner_link, e.is_vip,
		       ro.in_count, ro.out_count, ro.min_amount, ro.max_amount,
		       ro.fee, ro.params,
		       ci.name AS city_name, ci.code AS city_code, co.name AS country_name
		FROM ready_offers ro
		JOIN exchangers e ON e.id = ro.exchanger_id
		JOIN directions d ON d.id = ro.direction_id
		LEFT JOIN cities ci ON ci.id = ro.city_id
		LEFT JOIN countries co ON co.id = ci.country_id
		WHERE d.from_code = $1 AND d.to_code = $2
		  AND ro.is_active = TRUE AND e.is_active = TRUE
	`
	args := []interface{}{fromCode, toCode}

	if cityCode != nil {
		query += " AND ci.code = $3"
		args = append(args, *cityCode)
	} else {
		query += " AND ro.city_id IS NULL"
	}

	var candidates []model.OfferCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.Error("Failed to find active offers",
			zap.Error(err),
			zap.String("from", fromCode),
			zap.String("to", toCode))
		return nil, err
	}
	for i := range candidates {
		candidates[i].Source = model.SourceAuto
	}
	return candidates, nil
}

// ListByExchanger returns every materialized offer of an exchanger,
// including deactivated rows, ordered by direction. Backs the admin
// inspection endpoint.
func (r *OfferRepository) ListByExchanger(ctx context.Context, exchangerID int) ([]model.ReadyOffer, error) {
	var offers []model.ReadyOffer
	err := r.db.SelectContext(ctx, &offers, `
		SELECT id, exchanger_id, direction_id, city_id, in_count, out_count,
		       min_amount, max_amount, fee, params, is_active, time_action
		FROM ready_offers
		WHERE exchanger_id = $1
		ORDER BY direction_id, city_id NULLS FIRST
	`, exchangerID)
	if err != nil {
		r.logger.Error("Failed to list offers", zap.Error(err), zap.Int("exchanger_id", exchangerID))
		return nil, err
	}
	return offers, nil
}

// CountActiveByExchanger returns the number of currently active offers
// an exchanger serves; used by the info refresh.
func (r *OfferRepository) CountActiveByExchanger(ctx context.Context, exchangerID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM ready_offers WHERE exchanger_id = $1 AND is_active = TRUE`,
		exchangerID)
	if err != nil {
		r.logger.Error("Failed to count active offers", zap.Error(err), zap.Int("exchanger_id", exchangerID))
		return 0, err
	}
	return count, nil
}
