package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// BlackListKey identifies one negative-cache entry. CityID is nil for
// non-cash pairs.
type BlackListKey struct {
	DirectionID int
	CityID      *int
}

// BlackListRepository handles the per-exchanger negative cache of
// unsupported (city, pair) combinations.
type BlackListRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewBlackListRepository creates a new black-list repository
func NewBlackListRepository(db *sqlx.DB, logger *zap.Logger) *BlackListRepository {
	return &BlackListRepository{
		db:     db,
		logger: logger,
	}
}

// Add inserts the given keys, keeping existing entries untouched.
// Returns the number of newly black-listed keys.
func (r *BlackListRepository) Add(ctx context.Context, exchangerID int, keys []BlackListKey) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return 0, err
	}
	defer tx.Rollback()

	cashStmt, err := tx.PreparexContext(ctx, `
		INSERT INTO blacklist_elements (exchanger_id, direction_id, city_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (exchanger_id, direction_id, city_id) WHERE city_id IS NOT NULL
		DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer cashStmt.Close()

	nonCashStmt, err := tx.PreparexContext(ctx, `
		INSERT INTO blacklist_elements (exchanger_id, direction_id, city_id)
		VALUES ($1, $2, NULL)
		ON CONFLICT (exchanger_id, direction_id) WHERE city_id IS NULL
		DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer nonCashStmt.Close()

	added := 0
	for _, key := range keys {
		var res interface {
			RowsAffected() (int64, error)
		}
		if key.CityID != nil {
			res, err = cashStmt.ExecContext(ctx, exchangerID, key.DirectionID, *key.CityID)
		} else {
			res, err = nonCashStmt.ExecContext(ctx, exchangerID, key.DirectionID)
		}
		if err != nil {
			r.logger.Error("Failed to add black-list element",
				zap.Error(err),
				zap.Int("exchanger_id", exchangerID),
				zap.Int("direction_id", key.DirectionID))
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// Remove deletes the given keys so pairs that reappeared in a feed stop
// being negatively cached.
func (r *BlackListRepository) Remove(ctx context.Context, exchangerID int, keys []BlackListKey) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	for _, key := range keys {
		if key.CityID != nil {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM blacklist_elements WHERE exchanger_id = $1 AND direction_id = $2 AND city_id = $3`,
				exchangerID, key.DirectionID, *key.CityID)
		} else {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM blacklist_elements WHERE exchanger_id = $1 AND direction_id = $2 AND city_id IS NULL`,
				exchangerID, key.DirectionID)
		}
		if err != nil {
			r.logger.Error("Failed to remove black-list element",
				zap.Error(err),
				zap.Int("exchanger_id", exchangerID),
				zap.Int("direction_id", key.DirectionID))
			return err
		}
	}

	return tx.Commit()
}

// ListByExchanger returns the raw black-list rows of an exchanger for
// the admin inspection endpoint.
func (r *BlackListRepository) ListByExchanger(ctx context.Context, exchangerID int) ([]model.BlackListElement, error) {
	var elements []model.BlackListElement
	err := r.db.SelectContext(ctx, &elements, `
		SELECT id, exchanger_id, direction_id, city_id, created_at
		FROM blacklist_elements
		WHERE exchanger_id = $1
		ORDER BY direction_id, city_id NULLS FIRST
	`, exchangerID)
	if err != nil {
		r.logger.Error("Failed to list black-list elements", zap.Error(err), zap.Int("exchanger_id", exchangerID))
		return nil, err
	}
	return elements, nil
}

// ListEntries returns the black-listed keys of an exchanger as catalog
// entries so a rescan can parse the feed against exactly those keys.
func (r *BlackListRepository) ListEntries(ctx context.Context, exchangerID int) ([]model.CatalogEntry, error) {
	query := `
		SELECT COALESCE(b.city_id, 0) AS city_id, COALESCE(ci.code, '') AS city_code,
		       b.direction_id, d.from_code, d.to_code
		FROM blacklist_elements b
		JOIN directions d ON d.id = b.direction_id
		LEFT JOIN cities ci ON ci.id = b.city_id
		WHERE b.exchanger_id = $1
	`

	var rows []catalogRow
	if err := r.db.SelectContext(ctx, &rows, query, exchangerID); err != nil {
		r.logger.Error("Failed to list black-list entries", zap.Error(err), zap.Int("exchanger_id", exchangerID))
		return nil, err
	}
	return toCatalogEntries(rows), nil
}
