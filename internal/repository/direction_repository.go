package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// DirectionRepository handles database operations for directions
type DirectionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewDirectionRepository creates a new direction repository
func NewDirectionRepository(db *sqlx.DB, logger *zap.Logger) *DirectionRepository {
	return &DirectionRepository{
		db:     db,
		logger: logger,
	}
}

// GetByCodes retrieves a direction by its currency pair
func (r *DirectionRepository) GetByCodes(ctx context.Context, fromCode, toCode string) (*model.Direction, error) {
	query := `
		SELECT id, from_code, to_code, popular_count, actual_course, previous_course, created_at
		FROM directions
		WHERE from_code = $1 AND to_code = $2
	`

	var direction model.Direction
	err := r.db.GetContext(ctx, &direction, query, fromCode, toCode)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get direction",
			zap.Error(err),
			zap.String("from", fromCode),
			zap.String("to", toCode))
		return nil, err
	}
	return &direction, nil
}

// List retrieves all directions
func (r *DirectionRepository) List(ctx context.Context) ([]model.Direction, error) {
	query := `
		SELECT id, from_code, to_code, popular_count, actual_course, previous_course, created_at
		FROM directions
		ORDER BY from_code, to_code
	`

	var directions []model.Direction
	if err := r.db.SelectContext(ctx, &directions, query); err != nil {
		r.logger.Error("Failed to list directions", zap.Error(err))
		return nil, err
	}
	return directions, nil
}

// IncrementPopularCount bumps the rolling popularity counter of a pair
func (r *DirectionRepository) IncrementPopularCount(ctx context.Context, fromCode, toCode string) error {
	query := `
		UPDATE directions
		SET popular_count = popular_count + 1
		WHERE from_code = $1 AND to_code = $2
	`

	if _, err := r.db.ExecContext(ctx, query, fromCode, toCode); err != nil {
		r.logger.Error("Failed to increment popular count",
			zap.Error(err),
			zap.String("from", fromCode),
			zap.String("to", toCode))
		return err
	}
	return nil
}

// RecomputeActualCourses refreshes every direction's cached course
// from its best active offer (highest out, then lowest in), keeping
// the old value as previous_course for trend display. Directions with
// no active offers lose their cached course.
func (r *DirectionRepository) RecomputeActualCourses(ctx context.Context) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	// A stored out of 1 means the in leg is pinned above 1, so the
	// per-unit course is out/in.
	_, err = tx.ExecContext(ctx, `
		WITH best AS (
			SELECT DISTINCT ON (ro.direction_id)
			       ro.direction_id,
			       CASE WHEN ro.out_count = 1 THEN ro.out_count / ro.in_count
			            ELSE ro.out_count END AS course
			FROM ready_offers ro
			JOIN exchangers e ON e.id = ro.exchanger_id
			WHERE ro.is_active = TRUE AND e.is_active = TRUE
			ORDER BY ro.direction_id, ro.out_count DESC, ro.in_count ASC
		)
		UPDATE directions d
		SET previous_course = d.actual_course,
		    actual_course = best.course
		FROM best
		WHERE d.id = best.direction_id
	`)
	if err != nil {
		r.logger.Error("Failed to recompute actual courses", zap.Error(err))
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE directions d
		SET previous_course = d.actual_course,
		    actual_course = NULL
		WHERE d.actual_course IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1
			FROM ready_offers ro
			JOIN exchangers e ON e.id = ro.exchanger_id
			WHERE ro.direction_id = d.id
			  AND ro.is_active = TRUE AND e.is_active = TRUE
		)
	`)
	if err != nil {
		r.logger.Error("Failed to clear stale actual courses", zap.Error(err))
		return err
	}

	return tx.Commit()
}

// UpdateReferenceCourse stores an externally sourced spot rate
func (r *DirectionRepository) UpdateReferenceCourse(ctx context.Context, directionID int, course decimal.Decimal) error {
	query := `
		UPDATE directions
		SET previous_course = actual_course, actual_course = $2
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, directionID, course); err != nil {
		r.logger.Error("Failed to update reference course",
			zap.Error(err),
			zap.Int("direction_id", directionID))
		return err
	}
	return nil
}
