package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// ReviewRepository aggregates moderated review grades per exchanger
type ReviewRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewReviewRepository creates a new review repository
func NewReviewRepository(db *sqlx.DB, logger *zap.Logger) *ReviewRepository {
	return &ReviewRepository{
		db:     db,
		logger: logger,
	}
}

// AggregateForExchangers returns positive/neutral/negative counts of
// moderated reviews keyed by exchanger ID. Exchangers with no reviews
// are absent from the result.
func (r *ReviewRepository) AggregateForExchangers(ctx context.Context, exchangerIDs []int) (map[int]model.ReviewCounts, error) {
	counts := make(map[int]model.ReviewCounts)
	if len(exchangerIDs) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In(`
		SELECT exchanger_id,
		       COUNT(*) FILTER (WHERE grade = 1) AS positive,
		       COUNT(*) FILTER (WHERE grade = 0) AS neutral,
		       COUNT(*) FILTER (WHERE grade = -1) AS negative
		FROM reviews
		WHERE moderated = TRUE AND exchanger_id IN (?)
		GROUP BY exchanger_id
	`, exchangerIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to aggregate reviews", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var exchangerID int
		var rc model.ReviewCounts
		if err := rows.Scan(&exchangerID, &rc.Positive, &rc.Neutral, &rc.Negative); err != nil {
			return nil, err
		}
		counts[exchangerID] = rc
	}
	return counts, rows.Err()
}
