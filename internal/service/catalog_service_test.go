package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/cache"
	"github.com/yourorg/exchange-aggregator/internal/model"
)

type fakeCatalogSource struct {
	cash    []model.CatalogEntry
	nonCash []model.CatalogEntry
	err     error
	calls   int
}

func (f *fakeCatalogSource) GetCashCatalog(_ context.Context) ([]model.CatalogEntry, error) {
	f.calls++
	return f.cash, f.err
}

func (f *fakeCatalogSource) GetNonCashCatalog(_ context.Context) ([]model.CatalogEntry, error) {
	return f.nonCash, f.err
}

func TestGetCatalogCachesSnapshot(t *testing.T) {
	source := &fakeCatalogSource{
		cash:    []model.CatalogEntry{{CityID: 10, CityCode: "MSK", DirectionID: 1, FromCode: "BTC", ToCode: "CASHRUB"}},
		nonCash: []model.CatalogEntry{{DirectionID: 2, FromCode: "BTC", ToCode: "USDTTRC20"}},
	}
	svc := NewCatalogService(source, cache.NewMemoryStore(), time.Minute, zap.NewNop())
	ctx := context.Background()

	first, err := svc.GetCatalog(ctx)
	if err != nil {
		t.Fatalf("GetCatalog() error: %v", err)
	}
	second, err := svc.GetCatalog(ctx)
	if err != nil {
		t.Fatalf("GetCatalog() second call error: %v", err)
	}

	if source.calls != 1 {
		t.Errorf("store hit %d times, want 1 (second call served from cache)", source.calls)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached snapshot differs (-first +second):\n%s", diff)
	}
	if len(second.Cash) != 1 || len(second.NonCash) != 1 {
		t.Errorf("snapshot sizes = %d/%d, want 1/1", len(second.Cash), len(second.NonCash))
	}
}

func TestGetCatalogRebuildsAfterExpiry(t *testing.T) {
	source := &fakeCatalogSource{cash: []model.CatalogEntry{{CityID: 1, DirectionID: 1}}}
	svc := NewCatalogService(source, cache.NewMemoryStore(), 10*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.GetCatalog(ctx); err != nil {
		t.Fatalf("GetCatalog() error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.GetCatalog(ctx); err != nil {
		t.Fatalf("GetCatalog() after expiry error: %v", err)
	}

	if source.calls != 2 {
		t.Errorf("store hit %d times, want 2", source.calls)
	}
}

func TestGetCatalogStoreFailure(t *testing.T) {
	wantErr := errors.New("db down")
	source := &fakeCatalogSource{err: wantErr}
	svc := NewCatalogService(source, cache.NewMemoryStore(), time.Minute, zap.NewNop())

	if _, err := svc.GetCatalog(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("GetCatalog() error = %v, want %v", err, wantErr)
	}
}
