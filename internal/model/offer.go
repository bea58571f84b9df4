package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawOffer is one feed item matched against the catalog, after rate
// normalization. CityID/CityCode are zero for non-cash offers.
type RawOffer struct {
	CityID      int
	CityCode    string
	DirectionID int
	FromCode    string
	ToCode      string
	In          decimal.Decimal
	Out         decimal.Decimal
	MinAmount   string
	MaxAmount   string
	Fee         *decimal.Decimal
	Params      *string
}

// ReadyOffer is the materialized, queryable exchange listing for one
// exchanger (+ city for cash) and one direction. Rows are only ever
// deactivated by the sync path, never deleted, so click-through
// counters stay linked.
type ReadyOffer struct {
	ID          int              `json:"id" db:"id"`
	ExchangerID int              `json:"exchanger_id" db:"exchanger_id"`
	DirectionID int              `json:"direction_id" db:"direction_id"`
	CityID      *int             `json:"city_id,omitempty" db:"city_id"`
	InCount     decimal.Decimal  `json:"in_count" db:"in_count"`
	OutCount    decimal.Decimal  `json:"out_count" db:"out_count"`
	MinAmount   string           `json:"min_amount" db:"min_amount"`
	MaxAmount   string           `json:"max_amount" db:"max_amount"`
	Fee         *decimal.Decimal `json:"fee,omitempty" db:"fee"`
	Params      *string          `json:"params,omitempty" db:"params"`
	IsActive    bool             `json:"is_active" db:"is_active"`
	TimeAction  time.Time        `json:"time_action" db:"time_action"`
}

// OfferCandidate is one row of the read path before ranking: an active
// ready offer joined with its exchanger and currency metadata.
type OfferCandidate struct {
	OfferID       int             `db:"offer_id"`
	ExchangerID   int             `db:"exchanger_id"`
	ExchangerName string          `db:"exchanger_name"`
	EnName        string          `db:"en_name"`
	PartnerLink   string          `db:"partner_link"`
	IsVIP         bool            `db:"is_vip"`
	InCount       decimal.Decimal `db:"in_count"`
	OutCount      decimal.Decimal `db:"out_count"`
	MinAmount     string          `db:"min_amount"`
	MaxAmount     string          `db:"max_amount"`
	Fee           *decimal.Decimal `db:"fee"`
	Params        *string         `db:"params"`
	CityName      *string         `db:"city_name"`
	CityCode      *string         `db:"city_code"`
	CountryName   *string         `db:"country_name"`
	Source        string          `db:"-"`
}

// Offer sources merged by the read path.
const (
	SourceAuto    = "auto"
	SourcePartner = "partner"
)

// ReviewCounts aggregates moderated review grades for one exchanger
type ReviewCounts struct {
	Positive int `json:"positive" db:"positive"`
	Neutral  int `json:"neutral" db:"neutral"`
	Negative int `json:"negative" db:"negative"`
}

// RankedOffer is one row of the directions query response
type RankedOffer struct {
	ExchangerID   int              `json:"exchanger_id"`
	ExchangerName string           `json:"exchanger_name"`
	EnName        string           `json:"en_name"`
	PartnerLink   string           `json:"partner_link"`
	IsVIP         bool             `json:"is_vip"`
	In            decimal.Decimal  `json:"in"`
	Out           decimal.Decimal  `json:"out"`
	MinAmount     string           `json:"min_amount"`
	MaxAmount     string           `json:"max_amount"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	Params        *string          `json:"params,omitempty"`
	FromIconURL   string           `json:"from_icon_url"`
	ToIconURL     string           `json:"to_icon_url"`
	Reviews       ReviewCounts     `json:"reviews"`
	Location      *Location        `json:"location,omitempty"`
	Source        string           `json:"source"`
}

// BlackListElement is a (city?, direction) combination an exchanger's
// feed is known not to serve. CityID is nil for non-cash entries.
type BlackListElement struct {
	ID          int       `json:"id" db:"id"`
	ExchangerID int       `json:"exchanger_id" db:"exchanger_id"`
	DirectionID int       `json:"direction_id" db:"direction_id"`
	CityID      *int      `json:"city_id,omitempty" db:"city_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
