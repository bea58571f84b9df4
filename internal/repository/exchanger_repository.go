package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// ExchangerRepository handles database operations for exchangers
type ExchangerRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewExchangerRepository creates a new exchanger repository
func NewExchangerRepository(db *sqlx.DB, logger *zap.Logger) *ExchangerRepository {
	return &ExchangerRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an exchanger by ID
func (r *ExchangerRepository) GetByID(ctx context.Context, id int) (*model.Exchanger, error) {
	query := `
		SELECT id, name, en_name, partner_link, feed_url, is_active, is_vip, status,
		       timeout_sec, create_period_sec, update_period_sec, blacklist_period_hrs,
		       reserve_amount, age, course_count, created_at, updated_at
		FROM exchangers
		WHERE id = $1
	`

	var exchanger model.Exchanger
	err := r.db.GetContext(ctx, &exchanger, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get exchanger", zap.Error(err), zap.Int("exchanger_id", id))
		return nil, err
	}
	return &exchanger, nil
}

// List retrieves all exchangers
func (r *ExchangerRepository) List(ctx context.Context) ([]model.Exchanger, error) {
	query := `
		SELECT id, name, en_name, partner_link, feed_url, is_active, is_vip, status,
		       timeout_sec, create_period_sec, update_period_sec, blacklist_period_hrs,
		       reserve_amount, age, course_count, created_at, updated_at
		FROM exchangers
		ORDER BY name
	`

	var exchangers []model.Exchanger
	if err := r.db.SelectContext(ctx, &exchangers, query); err != nil {
		r.logger.Error("Failed to list exchangers", zap.Error(err))
		return nil, err
	}
	return exchangers, nil
}

// UpdateStatus persists a lifecycle status transition. The sync task
// must call this before using a fetched body.
func (r *ExchangerRepository) UpdateStatus(ctx context.Context, id int, status model.ExchangerStatus, isActive bool) error {
	query := `
		UPDATE exchangers
		SET status = $2, is_active = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, status, isActive); err != nil {
		r.logger.Error("Failed to update exchanger status",
			zap.Error(err),
			zap.Int("exchanger_id", id),
			zap.String("status", string(status)))
		return err
	}
	return nil
}

// UpdatePeriods stores the three refresh periods
func (r *ExchangerRepository) UpdatePeriods(ctx context.Context, id int, periods model.ExchangerPeriods) error {
	query := `
		UPDATE exchangers
		SET create_period_sec = $2, update_period_sec = $3, blacklist_period_hrs = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id,
		periods.CreatePeriodSec, periods.UpdatePeriodSec, periods.BlacklistPeriodHrs)
	if err != nil {
		r.logger.Error("Failed to update exchanger periods", zap.Error(err), zap.Int("exchanger_id", id))
		return err
	}
	return nil
}

// UpdateInfo refreshes the derived reference fields
func (r *ExchangerRepository) UpdateInfo(ctx context.Context, id int, courseCount int, age string) error {
	query := `
		UPDATE exchangers
		SET course_count = $2, age = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, courseCount, age); err != nil {
		r.logger.Error("Failed to update exchanger info", zap.Error(err), zap.Int("exchanger_id", id))
		return err
	}
	return nil
}
