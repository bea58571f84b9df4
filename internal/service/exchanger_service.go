package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// ExchangerAdminStore is the full exchanger persistence surface the
// admin operations need.
type ExchangerAdminStore interface {
	ExchangerStore
	List(ctx context.Context) ([]model.Exchanger, error)
	UpdatePeriods(ctx context.Context, id int, periods model.ExchangerPeriods) error
	UpdateInfo(ctx context.Context, id int, courseCount int, age string) error
}

// OfferInventory exposes an exchanger's materialized offers
type OfferInventory interface {
	CountActiveByExchanger(ctx context.Context, exchangerID int) (int, error)
	ListByExchanger(ctx context.Context, exchangerID int) ([]model.ReadyOffer, error)
}

// BlackListLister exposes an exchanger's negative-cache entries
type BlackListLister interface {
	ListByExchanger(ctx context.Context, exchangerID int) ([]model.BlackListElement, error)
}

// Rescheduler reacts to period and activity changes. Implemented by
// the scheduler; set after construction to break the wiring cycle.
type Rescheduler interface {
	Reconfigure(exchanger model.Exchanger)
}

// ExchangerService covers the admin surface: toggling exchangers,
// tuning their periods, refreshing display info, and manual sync
// triggers.
type ExchangerService struct {
	store     ExchangerAdminStore
	offers    OfferInventory
	blackList BlackListLister
	sync      *SyncService
	scheduler Rescheduler
	logger    *zap.Logger
}

// NewExchangerService creates an exchanger service
func NewExchangerService(
	store ExchangerAdminStore,
	offers OfferInventory,
	blackList BlackListLister,
	sync *SyncService,
	logger *zap.Logger,
) *ExchangerService {
	return &ExchangerService{
		store:     store,
		offers:    offers,
		blackList: blackList,
		sync:      sync,
		logger:    logger,
	}
}

// SetScheduler wires the scheduler in after both sides exist
func (s *ExchangerService) SetScheduler(scheduler Rescheduler) {
	s.scheduler = scheduler
}

// List returns all registered exchangers
func (s *ExchangerService) List(ctx context.Context) ([]model.Exchanger, error) {
	return s.store.List(ctx)
}

// Get returns one exchanger by ID
func (s *ExchangerService) Get(ctx context.Context, id int) (*model.Exchanger, error) {
	return s.store.GetByID(ctx, id)
}

// Offers returns every materialized offer of an exchanger, active and
// deactivated, for admin inspection.
func (s *ExchangerService) Offers(ctx context.Context, id int) ([]model.ReadyOffer, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.offers.ListByExchanger(ctx, id)
}

// BlackList returns the exchanger's negative-cache entries
func (s *ExchangerService) BlackList(ctx context.Context, id int) ([]model.BlackListElement, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.blackList.ListByExchanger(ctx, id)
}

// SetActive enables or disables an exchanger. Disabling stops its
// scheduled syncs and hides its offers from queries via the
// exchanger-level is_active join.
func (s *ExchangerService) SetActive(ctx context.Context, id int, active bool) error {
	status := model.StatusDisabled
	if active {
		status = model.StatusActive
	}
	if err := s.store.UpdateStatus(ctx, id, status, active); err != nil {
		return err
	}
	s.reschedule(ctx, id)

	s.logger.Info("Exchanger activity changed",
		zap.Int("exchanger_id", id),
		zap.Bool("active", active))
	return nil
}

// UpdatePeriods sets the per-exchanger sync cadence. A zero create
// period disables scheduled syncing entirely; restoring it to a
// positive value re-enables the exchanger.
func (s *ExchangerService) UpdatePeriods(ctx context.Context, id int, periods model.ExchangerPeriods) error {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.UpdatePeriods(ctx, id, periods); err != nil {
		return err
	}

	switch {
	case periods.CreatePeriodSec == 0 && current.CreatePeriod != 0:
		if err := s.store.UpdateStatus(ctx, id, model.StatusDisabled, false); err != nil {
			return err
		}
	case periods.CreatePeriodSec > 0 && current.CreatePeriod == 0:
		if err := s.store.UpdateStatus(ctx, id, model.StatusActive, true); err != nil {
			return err
		}
	}

	s.reschedule(ctx, id)

	s.logger.Info("Exchanger periods updated",
		zap.Int("exchanger_id", id),
		zap.Int("create_period_sec", periods.CreatePeriodSec),
		zap.Int("update_period_sec", periods.UpdatePeriodSec),
		zap.Int("blacklist_period_hrs", periods.BlacklistPeriodHrs))
	return nil
}

// RefreshInfo recomputes the exchanger's displayed statistics: active
// offer count and age since registration.
func (s *ExchangerService) RefreshInfo(ctx context.Context, id int) error {
	exchanger, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	count, err := s.offers.CountActiveByExchanger(ctx, id)
	if err != nil {
		return err
	}
	return s.store.UpdateInfo(ctx, id, count, ageString(exchanger.CreatedAt, time.Now()))
}

// TriggerSync runs a full sync now, subject to the same single-flight
// guard as scheduled runs.
func (s *ExchangerService) TriggerSync(ctx context.Context, id int) error {
	return s.sync.SyncExchanger(ctx, id)
}

// TriggerRescan runs a black-list rescan now
func (s *ExchangerService) TriggerRescan(ctx context.Context, id int) error {
	return s.sync.RescanBlackList(ctx, id)
}

func (s *ExchangerService) reschedule(ctx context.Context, id int) {
	if s.scheduler == nil {
		return
	}
	exchanger, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("Failed to reload exchanger for rescheduling",
			zap.Error(err), zap.Int("exchanger_id", id))
		return
	}
	s.scheduler.Reconfigure(*exchanger)
}

// ageString renders the years elapsed since registration, floored and
// never negative.
func ageString(createdAt, now time.Time) string {
	years := 0
	for createdAt.AddDate(years+1, 0, 0).Before(now) {
		years++
	}
	switch years {
	case 1:
		return "1 year"
	default:
		return fmt.Sprintf("%d years", years)
	}
}
