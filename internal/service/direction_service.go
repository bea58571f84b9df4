package service

import (
	"context"
	"errors"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// ErrNoOffersFound is returned when a query matches no active offers
var ErrNoOffersFound = errors.New("no offers found for direction")

// OfferFinder serves automatic (feed-synced) offers
type OfferFinder interface {
	FindActive(ctx context.Context, fromCode, toCode string, cityCode *string) ([]model.OfferCandidate, error)
}

// PartnerFinder serves manually configured partner offers
type PartnerFinder interface {
	FindForDirection(ctx context.Context, fromCode, toCode, cityCode string) ([]model.OfferCandidate, error)
}

// CurrencyGetter resolves currency reference data by code
type CurrencyGetter interface {
	GetByCodes(ctx context.Context, codes []string) (map[string]model.Currency, error)
}

// ReviewAggregator returns moderated review tallies per exchanger
type ReviewAggregator interface {
	AggregateForExchangers(ctx context.Context, exchangerIDs []int) (map[int]model.ReviewCounts, error)
}

// PopularityStore tracks how often a direction is queried
type PopularityStore interface {
	IncrementPopularCount(ctx context.Context, fromCode, toCode string) error
}

// DirectionService answers the public directions query: merge automatic
// and partner offers, rank them, and decorate with currency icons,
// review tallies and location metadata.
type DirectionService struct {
	offers     OfferFinder
	partners   PartnerFinder
	currencies CurrencyGetter
	reviews    ReviewAggregator
	popularity PopularityStore
	logger     *zap.Logger
}

// NewDirectionService creates a direction service
func NewDirectionService(
	offers OfferFinder,
	partners PartnerFinder,
	currencies CurrencyGetter,
	reviews ReviewAggregator,
	popularity PopularityStore,
	logger *zap.Logger,
) *DirectionService {
	return &DirectionService{
		offers:     offers,
		partners:   partners,
		currencies: currencies,
		reviews:    reviews,
		popularity: popularity,
		logger:     logger,
	}
}

// Query returns the ranked offers for a currency pair, city-scoped when
// cityCode is non-nil. Returns ErrNoOffersFound when the merged result
// is empty or either currency code is unknown.
func (s *DirectionService) Query(ctx context.Context, fromCode, toCode string, cityCode *string) ([]model.RankedOffer, error) {
	currencies, err := s.currencies.GetByCodes(ctx, []string{fromCode, toCode})
	if err != nil {
		return nil, err
	}
	fromCurrency, fromOK := currencies[fromCode]
	toCurrency, toOK := currencies[toCode]
	if !fromOK || !toOK {
		return nil, ErrNoOffersFound
	}

	candidates, err := s.offers.FindActive(ctx, fromCode, toCode, cityCode)
	if err != nil {
		return nil, err
	}

	if cityCode != nil {
		partnerOffers, err := s.partners.FindForDirection(ctx, fromCode, toCode, *cityCode)
		if err != nil {
			s.logger.Error("Failed to load partner offers",
				zap.Error(err),
				zap.String("from", fromCode),
				zap.String("to", toCode))
		} else {
			candidates = append(candidates, partnerOffers...)
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoOffersFound
	}

	rankCandidates(candidates)

	reviewCounts := s.loadReviews(ctx, candidates)
	places := displayPlaces(fromCurrency, toCurrency)

	ranked := make([]model.RankedOffer, 0, len(candidates))
	for _, c := range candidates {
		offer := model.RankedOffer{
			ExchangerID:   c.ExchangerID,
			ExchangerName: c.ExchangerName,
			EnName:        c.EnName,
			PartnerLink:   buildPartnerLink(c.PartnerLink, fromCode, toCode, cityCode),
			IsVIP:         c.IsVIP,
			In:            c.InCount.Round(places),
			Out:           c.OutCount.Round(places),
			MinAmount:     c.MinAmount,
			MaxAmount:     c.MaxAmount,
			Fee:           c.Fee,
			Params:        c.Params,
			FromIconURL:   fromCurrency.IconURL,
			ToIconURL:     toCurrency.IconURL,
			Reviews:       reviewCounts[c.ExchangerID],
			Source:        c.Source,
		}
		if c.CityName != nil {
			loc := &model.Location{City: *c.CityName}
			if c.CityCode != nil {
				loc.CityCode = *c.CityCode
			}
			if c.CountryName != nil {
				loc.Country = *c.CountryName
			}
			offer.Location = loc
		}
		ranked = append(ranked, offer)
	}

	if err := s.popularity.IncrementPopularCount(ctx, fromCode, toCode); err != nil {
		s.logger.Warn("Failed to increment direction popularity",
			zap.Error(err),
			zap.String("from", fromCode),
			zap.String("to", toCode))
	}

	return ranked, nil
}

// rankCandidates orders offers best-first: VIP exchangers lead, then
// more out per unit, then less in required. The sort is stable so
// equal offers keep their retrieval order.
func rankCandidates(candidates []model.OfferCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.IsVIP != b.IsVIP {
			return a.IsVIP
		}
		if cmp := a.OutCount.Cmp(b.OutCount); cmp != 0 {
			return cmp > 0
		}
		return a.InCount.Cmp(b.InCount) < 0
	})
}

// displayPlaces decides the decimal places for rendered amounts based
// on the currency categories at each leg.
func displayPlaces(from, to model.Currency) int32 {
	if model.IsStablecoinCode(from.Code) || model.IsStablecoinCode(to.Code) {
		return 3
	}
	fromCash := from.Category.IsCashLike()
	toCash := to.Category.IsCashLike()
	switch {
	case fromCash && toCash:
		return 3
	case fromCash || toCash:
		return 1
	case from.Category == model.CategoryCrypto && to.Category == model.CategoryCrypto:
		return 5
	}
	return 3
}

// buildPartnerLink appends the queried direction to the exchanger's
// referral link so the landing page opens pre-filled.
func buildPartnerLink(link, fromCode, toCode string, cityCode *string) string {
	if link == "" {
		return link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	q := u.Query()
	q.Set("cur_from", fromCode)
	q.Set("cur_to", toCode)
	if cityCode != nil {
		q.Set("city", *cityCode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *DirectionService) loadReviews(ctx context.Context, candidates []model.OfferCandidate) map[int]model.ReviewCounts {
	seen := make(map[int]bool, len(candidates))
	ids := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if !seen[c.ExchangerID] {
			seen[c.ExchangerID] = true
			ids = append(ids, c.ExchangerID)
		}
	}
	counts, err := s.reviews.AggregateForExchangers(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to aggregate reviews", zap.Error(err))
		return map[int]model.ReviewCounts{}
	}
	return counts
}
