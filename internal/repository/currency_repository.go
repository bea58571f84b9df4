package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// CurrencyRepository handles the immutable currency reference data
type CurrencyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCurrencyRepository creates a new currency repository
func NewCurrencyRepository(db *sqlx.DB, logger *zap.Logger) *CurrencyRepository {
	return &CurrencyRepository{
		db:     db,
		logger: logger,
	}
}

// GetByCodes retrieves currencies keyed by code
func (r *CurrencyRepository) GetByCodes(ctx context.Context, codes []string) (map[string]model.Currency, error) {
	result := make(map[string]model.Currency)
	if len(codes) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`
		SELECT code, name, category, icon_url, is_popular, created_at
		FROM currencies
		WHERE code IN (?)
	`, codes)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var currencies []model.Currency
	if err := r.db.SelectContext(ctx, &currencies, query, args...); err != nil {
		r.logger.Error("Failed to get currencies", zap.Error(err), zap.Strings("codes", codes))
		return nil, err
	}

	for _, c := range currencies {
		result[c.Code] = c
	}
	return result, nil
}
