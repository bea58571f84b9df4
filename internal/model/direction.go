package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents an ordered currency pair eligible for exchange.
// ActualCourse caches the best current rate; PreviousCourse keeps the
// prior value for trend display on cash directions.
type Direction struct {
	ID             int              `json:"id" db:"id"`
	FromCode       string           `json:"from_code" db:"from_code"`
	ToCode         string           `json:"to_code" db:"to_code"`
	PopularCount   int              `json:"popular_count" db:"popular_count"`
	ActualCourse   *decimal.Decimal `json:"actual_course,omitempty" db:"actual_course"`
	PreviousCourse *decimal.Decimal `json:"previous_course,omitempty" db:"previous_course"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// CatalogEntry is one (city, pair) combination worth extracting from a
// feed. Non-cash entries carry zero CityID and an empty CityCode.
type CatalogEntry struct {
	CityID      int    `json:"city_id"`
	CityCode    string `json:"city_code"`
	DirectionID int    `json:"direction_id"`
	FromCode    string `json:"from_code"`
	ToCode      string `json:"to_code"`
}

// Catalog is a derived, TTL-boxed snapshot over Direction and City used
// by the feed parser. It is rebuilt from the relational store on expiry
// and is never authoritative.
type Catalog struct {
	Cash    []CatalogEntry `json:"cash"`
	NonCash []CatalogEntry `json:"non_cash"`
}

// CashIndex builds the lookup the parser uses for city-scoped items:
// cityCode -> (fromCode, toCode) -> entry.
func (c *Catalog) CashIndex() map[string]map[[2]string]CatalogEntry {
	idx := make(map[string]map[[2]string]CatalogEntry)
	for _, e := range c.Cash {
		pairs, ok := idx[e.CityCode]
		if !ok {
			pairs = make(map[[2]string]CatalogEntry)
			idx[e.CityCode] = pairs
		}
		pairs[[2]string{e.FromCode, e.ToCode}] = e
	}
	return idx
}

// NonCashIndex builds the (fromCode, toCode) -> entry lookup for items
// without a city.
func (c *Catalog) NonCashIndex() map[[2]string]CatalogEntry {
	idx := make(map[[2]string]CatalogEntry, len(c.NonCash))
	for _, e := range c.NonCash {
		idx[[2]string{e.FromCode, e.ToCode}] = e
	}
	return idx
}
