package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/client"
	"github.com/yourorg/exchange-aggregator/internal/lock"
	"github.com/yourorg/exchange-aggregator/internal/model"
	"github.com/yourorg/exchange-aggregator/internal/parser"
	"github.com/yourorg/exchange-aggregator/internal/repository"
)

// ExchangerStore is the exchanger state the sync path reads and writes
type ExchangerStore interface {
	GetByID(ctx context.Context, id int) (*model.Exchanger, error)
	UpdateStatus(ctx context.Context, id int, status model.ExchangerStatus, isActive bool) error
}

// OfferStore persists parsed offers
type OfferStore interface {
	ReconcileCash(ctx context.Context, exchangerID int, offers []model.RawOffer, syncTime time.Time) (int, int, error)
	ReconcileNonCash(ctx context.Context, exchangerID int, offers []model.RawOffer, syncTime time.Time) (int, int, error)
	UpsertCash(ctx context.Context, exchangerID int, offers []model.RawOffer, syncTime time.Time) (int, error)
	UpsertNonCash(ctx context.Context, exchangerID int, offers []model.RawOffer, syncTime time.Time) (int, error)
}

// BlackListStore records (direction, city) keys an exchanger stopped serving
type BlackListStore interface {
	Add(ctx context.Context, exchangerID int, keys []repository.BlackListKey) (int, error)
	Remove(ctx context.Context, exchangerID int, keys []repository.BlackListKey) error
	ListEntries(ctx context.Context, exchangerID int) ([]model.CatalogEntry, error)
}

// CourseStore recomputes per-direction cached courses
type CourseStore interface {
	RecomputeActualCourses(ctx context.Context) error
}

// CatalogProvider serves the parse catalog snapshot
type CatalogProvider interface {
	GetCatalog(ctx context.Context) (*model.Catalog, error)
}

// FeedFetcher retrieves an exchanger's raw feed document
type FeedFetcher interface {
	Fetch(ctx context.Context, exchanger *model.Exchanger) (string, error)
}

// FeedParser extracts catalog-matched offers from a feed document
type FeedParser interface {
	Parse(body string, catalog *model.Catalog) (*parser.Result, error)
}

// EventPublisher announces completed sync runs
type EventPublisher interface {
	PublishSyncCompleted(ctx context.Context, event model.SyncCompletedEvent)
}

// SyncService runs the feed synchronization pipeline for one exchanger
// at a time per exchanger: fetch, parse, reconcile, black-list, course
// recompute. Overlapping triggers for the same exchanger are dropped,
// not queued.
type SyncService struct {
	exchangers ExchangerStore
	offers     OfferStore
	blacklist  BlackListStore
	courses    CourseStore
	catalog    CatalogProvider
	feed       FeedFetcher
	parser     FeedParser
	locker     lock.Locker
	publisher  EventPublisher
	lockTTL    time.Duration
	runBudget  time.Duration
	logger     *zap.Logger
}

// NewSyncService creates a sync service
func NewSyncService(
	exchangers ExchangerStore,
	offers OfferStore,
	blacklist BlackListStore,
	courses CourseStore,
	catalog CatalogProvider,
	feed FeedFetcher,
	feedParser FeedParser,
	locker lock.Locker,
	publisher EventPublisher,
	lockTTL time.Duration,
	runBudget time.Duration,
	logger *zap.Logger,
) *SyncService {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	if runBudget <= 0 {
		runBudget = 2 * time.Minute
	}
	return &SyncService{
		exchangers: exchangers,
		offers:     offers,
		blacklist:  blacklist,
		courses:    courses,
		catalog:    catalog,
		feed:       feed,
		parser:     feedParser,
		locker:     locker,
		publisher:  publisher,
		lockTTL:    lockTTL,
		runBudget:  runBudget,
		logger:     logger,
	}
}

func syncLockKey(exchangerID int) string {
	return fmt.Sprintf("sync:exchanger:%d", exchangerID)
}

// SyncExchanger runs one full synchronization for the exchanger. A run
// already in flight for the same exchanger makes this a no-op returning
// lock.ErrNotAcquired. Feed-level failures (timeout, robot check,
// maintenance) are absorbed into the exchanger's status and do not
// propagate as errors.
func (s *SyncService) SyncExchanger(ctx context.Context, exchangerID int) error {
	token, err := s.locker.Acquire(ctx, syncLockKey(exchangerID), s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.logger.Debug("Sync already in flight, dropping trigger",
				zap.Int("exchanger_id", exchangerID))
		}
		return err
	}
	defer func() {
		if err := s.locker.Release(context.Background(), syncLockKey(exchangerID), token); err != nil {
			s.logger.Warn("Failed to release sync lock",
				zap.Error(err), zap.Int("exchanger_id", exchangerID))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.runBudget)
	defer cancel()

	started := time.Now()

	exchanger, err := s.exchangers.GetByID(ctx, exchangerID)
	if err != nil {
		return err
	}
	if !exchanger.SyncEligible() {
		s.logger.Debug("Exchanger not eligible for sync",
			zap.Int("exchanger_id", exchangerID),
			zap.String("status", string(exchanger.Status)))
		return nil
	}

	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		s.logger.Error("Catalog unavailable, aborting sync",
			zap.Error(err), zap.Int("exchanger_id", exchangerID))
		return err
	}

	body, err := s.feed.Fetch(ctx, exchanger)
	if err != nil {
		return s.recordFetchFailure(ctx, exchanger, err)
	}

	if err := s.exchangers.UpdateStatus(ctx, exchangerID, model.StatusActive, true); err != nil {
		return err
	}

	result, err := s.parser.Parse(body, catalog)
	if err != nil {
		s.logger.Error("Feed parse failed",
			zap.Error(err),
			zap.Int("exchanger_id", exchangerID),
			zap.String("exchanger", exchanger.Name))
		return err
	}

	if len(result.Cash) == 0 && len(result.NonCash) == 0 {
		// A feed that matched nothing in the catalog is treated as a
		// transient glitch: existing offers keep their state rather
		// than being swept wholesale.
		s.logger.Warn("Feed matched no catalog entries, keeping existing offers",
			zap.Int("exchanger_id", exchangerID),
			zap.String("exchanger", exchanger.Name))
		return nil
	}

	syncTime := time.Now().UTC()

	cashUpserted, cashDeactivated, err := s.offers.ReconcileCash(ctx, exchangerID, result.Cash, syncTime)
	if err != nil {
		return err
	}
	nonCashUpserted, nonCashDeactivated, err := s.offers.ReconcileNonCash(ctx, exchangerID, result.NonCash, syncTime)
	if err != nil {
		return err
	}

	blacklisted, err := s.reconcileBlackList(ctx, exchangerID, catalog, result)
	if err != nil {
		s.logger.Error("Black-list reconciliation failed",
			zap.Error(err), zap.Int("exchanger_id", exchangerID))
	}

	if err := s.courses.RecomputeActualCourses(ctx); err != nil {
		s.logger.Error("Course recompute failed", zap.Error(err))
	}

	s.publisher.PublishSyncCompleted(ctx, model.SyncCompletedEvent{
		RunID:           uuid.New().String(),
		ExchangerID:     exchangerID,
		ExchangerName:   exchanger.Name,
		CashUpserted:    cashUpserted,
		NonCashUpserted: nonCashUpserted,
		Deactivated:     cashDeactivated + nonCashDeactivated,
		Blacklisted:     blacklisted,
		Duration:        time.Since(started).Seconds(),
		CompletedAt:     time.Now().UTC(),
	})

	s.logger.Info("Sync completed",
		zap.Int("exchanger_id", exchangerID),
		zap.String("exchanger", exchanger.Name),
		zap.Int("cash_upserted", cashUpserted),
		zap.Int("non_cash_upserted", nonCashUpserted),
		zap.Int("deactivated", cashDeactivated+nonCashDeactivated),
		zap.Int("blacklisted", blacklisted),
		zap.Duration("took", time.Since(started)))
	return nil
}

// RescanBlackList re-parses the feed against the exchanger's
// black-listed keys only. Keys found again get their offers upserted
// and leave the black-list; nothing is swept, since absence from this
// partial parse proves nothing.
func (s *SyncService) RescanBlackList(ctx context.Context, exchangerID int) error {
	token, err := s.locker.Acquire(ctx, syncLockKey(exchangerID), s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.logger.Debug("Sync already in flight, dropping rescan",
				zap.Int("exchanger_id", exchangerID))
		}
		return err
	}
	defer func() {
		if err := s.locker.Release(context.Background(), syncLockKey(exchangerID), token); err != nil {
			s.logger.Warn("Failed to release sync lock",
				zap.Error(err), zap.Int("exchanger_id", exchangerID))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.runBudget)
	defer cancel()

	exchanger, err := s.exchangers.GetByID(ctx, exchangerID)
	if err != nil {
		return err
	}
	if !exchanger.SyncEligible() {
		return nil
	}

	entries, err := s.blacklist.ListEntries(ctx, exchangerID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	catalog := &model.Catalog{}
	for _, e := range entries {
		if e.CityID != 0 {
			catalog.Cash = append(catalog.Cash, e)
		} else {
			catalog.NonCash = append(catalog.NonCash, e)
		}
	}

	body, err := s.feed.Fetch(ctx, exchanger)
	if err != nil {
		return s.recordFetchFailure(ctx, exchanger, err)
	}

	result, err := s.parser.Parse(body, catalog)
	if err != nil {
		return err
	}
	if len(result.Cash) == 0 && len(result.NonCash) == 0 {
		return nil
	}

	syncTime := time.Now().UTC()
	if _, err := s.offers.UpsertCash(ctx, exchangerID, result.Cash, syncTime); err != nil {
		return err
	}
	if _, err := s.offers.UpsertNonCash(ctx, exchangerID, result.NonCash, syncTime); err != nil {
		return err
	}

	keys := parsedKeys(result)
	recovered := make([]repository.BlackListKey, 0, len(keys))
	for _, k := range keys {
		recovered = append(recovered, k.toBlackListKey())
	}
	if err := s.blacklist.Remove(ctx, exchangerID, recovered); err != nil {
		return err
	}

	if err := s.courses.RecomputeActualCourses(ctx); err != nil {
		s.logger.Error("Course recompute failed", zap.Error(err))
	}

	s.logger.Info("Black-list rescan completed",
		zap.Int("exchanger_id", exchangerID),
		zap.String("exchanger", exchanger.Name),
		zap.Int("recovered", len(recovered)))
	return nil
}

// recordFetchFailure maps a feed fetch error onto the exchanger's
// status and marks it inactive. The error is contained here; the
// caller sees success because the run did its job of recording state.
func (s *SyncService) recordFetchFailure(ctx context.Context, exchanger *model.Exchanger, fetchErr error) error {
	status := model.StatusInactive
	switch {
	case errors.Is(fetchErr, client.ErrRobotCheck):
		status = model.StatusRobotCheckError
	case errors.Is(fetchErr, client.ErrTimeout):
		status = model.StatusTimeoutError
	case errors.Is(fetchErr, client.ErrMaintenance):
		status = model.StatusInactive
	}

	s.logger.Warn("Feed fetch failed",
		zap.Error(fetchErr),
		zap.Int("exchanger_id", exchanger.ID),
		zap.String("exchanger", exchanger.Name),
		zap.String("status", string(status)))

	return s.exchangers.UpdateStatus(ctx, exchanger.ID, status, false)
}

// syncKey is the comparable form of a black-list key; CityID zero
// means city-less.
type syncKey struct {
	DirectionID int
	CityID      int
}

func (k syncKey) toBlackListKey() repository.BlackListKey {
	if k.CityID == 0 {
		return repository.BlackListKey{DirectionID: k.DirectionID}
	}
	cityID := k.CityID
	return repository.BlackListKey{DirectionID: k.DirectionID, CityID: &cityID}
}

// reconcileBlackList computes which catalog keys this run failed to
// serve and which black-listed keys reappeared. Keys absent from the
// parse join the black-list; keys present leave it.
func (s *SyncService) reconcileBlackList(
	ctx context.Context,
	exchangerID int,
	catalog *model.Catalog,
	result *parser.Result,
) (int, error) {
	parsed := make(map[syncKey]bool, len(result.Cash)+len(result.NonCash))
	for _, k := range parsedKeys(result) {
		parsed[k] = true
	}

	var missing []repository.BlackListKey
	for _, e := range catalog.Cash {
		if !parsed[syncKey{DirectionID: e.DirectionID, CityID: e.CityID}] {
			missing = append(missing, syncKey{DirectionID: e.DirectionID, CityID: e.CityID}.toBlackListKey())
		}
	}
	for _, e := range catalog.NonCash {
		if !parsed[syncKey{DirectionID: e.DirectionID}] {
			missing = append(missing, repository.BlackListKey{DirectionID: e.DirectionID})
		}
	}

	added, err := s.blacklist.Add(ctx, exchangerID, missing)
	if err != nil {
		return 0, err
	}

	found := make([]repository.BlackListKey, 0, len(parsed))
	for k := range parsed {
		found = append(found, k.toBlackListKey())
	}
	if err := s.blacklist.Remove(ctx, exchangerID, found); err != nil {
		return added, err
	}
	return added, nil
}

// parsedKeys flattens a parse result into black-list keys
func parsedKeys(result *parser.Result) []syncKey {
	keys := make([]syncKey, 0, len(result.Cash)+len(result.NonCash))
	for _, o := range result.Cash {
		keys = append(keys, syncKey{DirectionID: o.DirectionID, CityID: o.CityID})
	}
	for _, o := range result.NonCash {
		keys = append(keys, syncKey{DirectionID: o.DirectionID})
	}
	return keys
}
