package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// CatalogRepository builds catalog snapshots from the relational store.
// The snapshot itself lives in the TTL cache; this repository is only
// hit on cache expiry.
type CatalogRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *sqlx.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:     db,
		logger: logger,
	}
}

type catalogRow struct {
	CityID      int    `db:"city_id"`
	CityCode    string `db:"city_code"`
	DirectionID int    `db:"direction_id"`
	FromCode    string `db:"from_code"`
	ToCode      string `db:"to_code"`
}

// GetCashCatalog returns the cross product of cash-eligible directions
// and cities flagged for parsing. A direction is cash-eligible when at
// least one leg is a Cash or ATM QR currency.
func (r *CatalogRepository) GetCashCatalog(ctx context.Context) ([]model.CatalogEntry, error) {
	query := `
		SELECT ci.id AS city_id, ci.code AS city_code,
		       d.id AS direction_id, d.from_code, d.to_code
		FROM directions d
		JOIN currencies cf ON cf.code = d.from_code
		JOIN currencies ct ON ct.code = d.to_code
		CROSS JOIN cities ci
		WHERE ci.is_parse = TRUE
		  AND (cf.category IN ('Cash', 'ATM QR') OR ct.category IN ('Cash', 'ATM QR'))
	`

	var rows []catalogRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.logger.Error("Failed to build cash catalog", zap.Error(err))
		return nil, err
	}
	return toCatalogEntries(rows), nil
}

// GetNonCashCatalog returns directions with no cash leg; they are
// matched against feed items that carry no city.
func (r *CatalogRepository) GetNonCashCatalog(ctx context.Context) ([]model.CatalogEntry, error) {
	query := `
		SELECT 0 AS city_id, '' AS city_code,
		       d.id AS direction_id, d.from_code, d.to_code
		FROM directions d
		JOIN currencies cf ON cf.code = d.from_code
		JOIN currencies ct ON ct.code = d.to_code
		WHERE cf.category NOT IN ('Cash', 'ATM QR')
		  AND ct.category NOT IN ('Cash', 'ATM QR')
	`

	var rows []catalogRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.logger.Error("Failed to build non-cash catalog", zap.Error(err))
		return nil, err
	}
	return toCatalogEntries(rows), nil
}

func toCatalogEntries(rows []catalogRow) []model.CatalogEntry {
	entries := make([]model.CatalogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, model.CatalogEntry{
			CityID:      row.CityID,
			CityCode:    row.CityCode,
			DirectionID: row.DirectionID,
			FromCode:    row.FromCode,
			ToCode:      row.ToCode,
		})
	}
	return entries
}
