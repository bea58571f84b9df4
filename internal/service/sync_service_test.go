package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/client"
	"github.com/yourorg/exchange-aggregator/internal/lock"
	"github.com/yourorg/exchange-aggregator/internal/model"
	"github.com/yourorg/exchange-aggregator/internal/parser"
	"github.com/yourorg/exchange-aggregator/internal/repository"
)

type statusUpdate struct {
	status model.ExchangerStatus
	active bool
}

type fakeExchangers struct {
	exchanger *model.Exchanger
	updates   []statusUpdate
}

func (f *fakeExchangers) GetByID(_ context.Context, id int) (*model.Exchanger, error) {
	if f.exchanger == nil || f.exchanger.ID != id {
		return nil, repository.ErrNotFound
	}
	e := *f.exchanger
	return &e, nil
}

func (f *fakeExchangers) UpdateStatus(_ context.Context, _ int, status model.ExchangerStatus, active bool) error {
	f.updates = append(f.updates, statusUpdate{status: status, active: active})
	return nil
}

type fakeOffers struct {
	reconciledCash    []model.RawOffer
	reconciledNonCash []model.RawOffer
	upsertedCash      []model.RawOffer
	upsertedNonCash   []model.RawOffer
	deactivated       int
}

func (f *fakeOffers) ReconcileCash(_ context.Context, _ int, offers []model.RawOffer, _ time.Time) (int, int, error) {
	f.reconciledCash = append(f.reconciledCash, offers...)
	return len(offers), f.deactivated, nil
}

func (f *fakeOffers) ReconcileNonCash(_ context.Context, _ int, offers []model.RawOffer, _ time.Time) (int, int, error) {
	f.reconciledNonCash = append(f.reconciledNonCash, offers...)
	return len(offers), 0, nil
}

func (f *fakeOffers) UpsertCash(_ context.Context, _ int, offers []model.RawOffer, _ time.Time) (int, error) {
	f.upsertedCash = append(f.upsertedCash, offers...)
	return len(offers), nil
}

func (f *fakeOffers) UpsertNonCash(_ context.Context, _ int, offers []model.RawOffer, _ time.Time) (int, error) {
	f.upsertedNonCash = append(f.upsertedNonCash, offers...)
	return len(offers), nil
}

type fakeBlackList struct {
	entries []model.CatalogEntry
	added   []repository.BlackListKey
	removed []repository.BlackListKey
}

func (f *fakeBlackList) Add(_ context.Context, _ int, keys []repository.BlackListKey) (int, error) {
	f.added = append(f.added, keys...)
	return len(keys), nil
}

func (f *fakeBlackList) Remove(_ context.Context, _ int, keys []repository.BlackListKey) error {
	f.removed = append(f.removed, keys...)
	return nil
}

func (f *fakeBlackList) ListEntries(_ context.Context, _ int) ([]model.CatalogEntry, error) {
	return f.entries, nil
}

type fakeCourses struct {
	recomputes int
}

func (f *fakeCourses) RecomputeActualCourses(_ context.Context) error {
	f.recomputes++
	return nil
}

type fakeCatalog struct {
	catalog *model.Catalog
	err     error
}

func (f *fakeCatalog) GetCatalog(_ context.Context) (*model.Catalog, error) {
	return f.catalog, f.err
}

type fakeFeed struct {
	body  string
	err   error
	calls int
}

func (f *fakeFeed) Fetch(_ context.Context, _ *model.Exchanger) (string, error) {
	f.calls++
	return f.body, f.err
}

type fakePublisher struct {
	events []model.SyncCompletedEvent
}

func (f *fakePublisher) PublishSyncCompleted(_ context.Context, event model.SyncCompletedEvent) {
	f.events = append(f.events, event)
}

type syncFixture struct {
	exchangers *fakeExchangers
	offers     *fakeOffers
	blacklist  *fakeBlackList
	courses    *fakeCourses
	feed       *fakeFeed
	publisher  *fakePublisher
	locker     lock.Locker
	service    *SyncService
}

func newSyncFixture(t *testing.T, feed *fakeFeed, catalog *model.Catalog) *syncFixture {
	t.Helper()
	f := &syncFixture{
		exchangers: &fakeExchangers{exchanger: &model.Exchanger{
			ID:     1,
			Name:   "TestChange",
			Status: model.StatusActive,
		}},
		offers:    &fakeOffers{},
		blacklist: &fakeBlackList{},
		courses:   &fakeCourses{},
		feed:      feed,
		publisher: &fakePublisher{},
		locker:    lock.NewMemoryLocker(),
	}
	f.service = NewSyncService(
		f.exchangers,
		f.offers,
		f.blacklist,
		f.courses,
		&fakeCatalog{catalog: catalog},
		f.feed,
		parser.NewParser(zap.NewNop()),
		f.locker,
		f.publisher,
		time.Minute,
		time.Minute,
		zap.NewNop(),
	)
	return f
}

func syncTestCatalog() *model.Catalog {
	return &model.Catalog{
		Cash: []model.CatalogEntry{
			{CityID: 10, CityCode: "MSK", DirectionID: 1, FromCode: "BTC", ToCode: "CASHRUB"},
			{CityID: 11, CityCode: "SPB", DirectionID: 1, FromCode: "BTC", ToCode: "CASHRUB"},
		},
		NonCash: []model.CatalogEntry{
			{DirectionID: 2, FromCode: "BTC", ToCode: "USDTTRC20"},
		},
	}
}

const syncTestFeed = `<rates>
	<item>
		<from>BTC</from><to>CASHRUB</to><city>MSK</city>
		<in>1</in><out>6500000</out>
		<minamount>0.001 BTC</minamount><maxamount>2 BTC</maxamount>
	</item>
	<item>
		<from>BTC</from><to>USDTTRC20</to>
		<in>1</in><out>65000</out>
		<minAmount>0.01 BTC</minAmount><maxAmount>5 BTC</maxAmount>
	</item>
</rates>`

func TestSyncExchanger(t *testing.T) {
	f := newSyncFixture(t, &fakeFeed{body: syncTestFeed}, syncTestCatalog())

	if err := f.service.SyncExchanger(context.Background(), 1); err != nil {
		t.Fatalf("SyncExchanger() error: %v", err)
	}

	if len(f.offers.reconciledCash) != 1 {
		t.Errorf("reconciled %d cash offers, want 1", len(f.offers.reconciledCash))
	}
	if len(f.offers.reconciledNonCash) != 1 {
		t.Errorf("reconciled %d non-cash offers, want 1", len(f.offers.reconciledNonCash))
	}

	// The SPB catalog entry did not parse, so it joins the black-list
	if len(f.blacklist.added) != 1 {
		t.Fatalf("black-listed %d keys, want 1", len(f.blacklist.added))
	}
	added := f.blacklist.added[0]
	if added.DirectionID != 1 || added.CityID == nil || *added.CityID != 11 {
		t.Errorf("black-listed key = %+v, want direction 1 city 11", added)
	}

	// Parsed keys are removed from the black-list in the same run
	if len(f.blacklist.removed) != 2 {
		t.Errorf("removed %d keys from black-list, want 2", len(f.blacklist.removed))
	}

	if f.courses.recomputes != 1 {
		t.Errorf("course recomputes = %d, want 1", f.courses.recomputes)
	}

	if len(f.exchangers.updates) != 1 {
		t.Fatalf("status updates = %d, want 1", len(f.exchangers.updates))
	}
	if got := f.exchangers.updates[0]; got.status != model.StatusActive || !got.active {
		t.Errorf("status update = %+v, want active", got)
	}

	if len(f.publisher.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.publisher.events))
	}
	event := f.publisher.events[0]
	if event.CashUpserted != 1 || event.NonCashUpserted != 1 || event.Blacklisted != 1 {
		t.Errorf("event counts = %+v", event)
	}
	if event.RunID == "" {
		t.Error("event run ID is empty")
	}
}

func TestSyncExchangerFetchFailures(t *testing.T) {
	tests := []struct {
		name       string
		fetchErr   error
		wantStatus model.ExchangerStatus
	}{
		{"robot check", client.ErrRobotCheck, model.StatusRobotCheckError},
		{"timeout", client.ErrTimeout, model.StatusTimeoutError},
		{"maintenance", client.ErrMaintenance, model.StatusInactive},
		{"generic", errors.New("connection refused"), model.StatusInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(t, &fakeFeed{err: tt.fetchErr}, syncTestCatalog())

			if err := f.service.SyncExchanger(context.Background(), 1); err != nil {
				t.Fatalf("SyncExchanger() error: %v", err)
			}

			if len(f.exchangers.updates) != 1 {
				t.Fatalf("status updates = %d, want 1", len(f.exchangers.updates))
			}
			got := f.exchangers.updates[0]
			if got.status != tt.wantStatus || got.active {
				t.Errorf("status update = %+v, want {%s false}", got, tt.wantStatus)
			}

			if len(f.offers.reconciledCash)+len(f.offers.reconciledNonCash) != 0 {
				t.Error("offers reconciled despite fetch failure")
			}
		})
	}
}

func TestSyncExchangerEmptyParseKeepsOffers(t *testing.T) {
	feed := `<rates><item><from>ETH</from><to>EUR</to><in>1</in><out>3000</out>
		<minamount>1 ETH</minamount><maxamount>10 ETH</maxamount></item></rates>`
	f := newSyncFixture(t, &fakeFeed{body: feed}, syncTestCatalog())

	if err := f.service.SyncExchanger(context.Background(), 1); err != nil {
		t.Fatalf("SyncExchanger() error: %v", err)
	}

	if len(f.offers.reconciledCash)+len(f.offers.reconciledNonCash) != 0 {
		t.Error("offers reconciled despite empty parse")
	}
	if len(f.blacklist.added) != 0 {
		t.Error("black-list touched despite empty parse")
	}
	if len(f.publisher.events) != 0 {
		t.Error("event published despite empty parse")
	}
}

func TestSyncExchangerSkipsIneligibleStatuses(t *testing.T) {
	for _, status := range []model.ExchangerStatus{model.StatusDisabled, model.StatusScam, model.StatusSkip} {
		t.Run(string(status), func(t *testing.T) {
			feed := &fakeFeed{body: syncTestFeed}
			f := newSyncFixture(t, feed, syncTestCatalog())
			f.exchangers.exchanger.Status = status

			if err := f.service.SyncExchanger(context.Background(), 1); err != nil {
				t.Fatalf("SyncExchanger() error: %v", err)
			}
			if feed.calls != 0 {
				t.Error("feed fetched for ineligible exchanger")
			}
		})
	}
}

func TestSyncExchangerSingleFlight(t *testing.T) {
	f := newSyncFixture(t, &fakeFeed{body: syncTestFeed}, syncTestCatalog())

	if _, err := f.locker.Acquire(context.Background(), syncLockKey(1), time.Minute); err != nil {
		t.Fatalf("pre-acquire lock: %v", err)
	}

	err := f.service.SyncExchanger(context.Background(), 1)
	if !errors.Is(err, lock.ErrNotAcquired) {
		t.Fatalf("SyncExchanger() error = %v, want ErrNotAcquired", err)
	}
	if f.feed.calls != 0 {
		t.Error("feed fetched despite held lock")
	}
}

func TestSyncExchangerCatalogUnavailable(t *testing.T) {
	f := newSyncFixture(t, &fakeFeed{body: syncTestFeed}, nil)
	wantErr := errors.New("store down")
	f.service.catalog = &fakeCatalog{err: wantErr}

	if err := f.service.SyncExchanger(context.Background(), 1); !errors.Is(err, wantErr) {
		t.Fatalf("SyncExchanger() error = %v, want %v", err, wantErr)
	}
	if len(f.exchangers.updates) != 0 {
		t.Error("status changed despite aborted run")
	}
}

func TestRescanBlackList(t *testing.T) {
	f := newSyncFixture(t, &fakeFeed{body: syncTestFeed}, syncTestCatalog())
	f.blacklist.entries = []model.CatalogEntry{
		{CityID: 10, CityCode: "MSK", DirectionID: 1, FromCode: "BTC", ToCode: "CASHRUB"},
		{CityID: 11, CityCode: "SPB", DirectionID: 1, FromCode: "BTC", ToCode: "CASHRUB"},
	}

	if err := f.service.RescanBlackList(context.Background(), 1); err != nil {
		t.Fatalf("RescanBlackList() error: %v", err)
	}

	// Only the MSK entry is in the feed; it gets upserted and removed
	// from the black-list. Nothing is reconciled, so no sweep happens.
	if len(f.offers.upsertedCash) != 1 {
		t.Errorf("upserted %d cash offers, want 1", len(f.offers.upsertedCash))
	}
	if len(f.offers.reconciledCash) != 0 {
		t.Error("rescan must not run the sweeping reconcile")
	}
	if len(f.blacklist.removed) != 1 {
		t.Fatalf("removed %d keys, want 1", len(f.blacklist.removed))
	}
	removed := f.blacklist.removed[0]
	if removed.DirectionID != 1 || removed.CityID == nil || *removed.CityID != 10 {
		t.Errorf("removed key = %+v, want direction 1 city 10", removed)
	}
	if len(f.blacklist.added) != 0 {
		t.Error("rescan must never add black-list entries")
	}
}

func TestRescanBlackListEmptyListSkipsFetch(t *testing.T) {
	feed := &fakeFeed{body: syncTestFeed}
	f := newSyncFixture(t, feed, syncTestCatalog())

	if err := f.service.RescanBlackList(context.Background(), 1); err != nil {
		t.Fatalf("RescanBlackList() error: %v", err)
	}
	if feed.calls != 0 {
		t.Error("feed fetched with an empty black-list")
	}
}
