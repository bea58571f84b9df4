package model

import (
	"strings"
	"time"
)

// CurrencyCategory classifies a currency for parsing and display rules
type CurrencyCategory string

const (
	CategoryCash            CurrencyCategory = "Cash"
	CategoryCrypto          CurrencyCategory = "Cryptocurrency"
	CategoryDigital         CurrencyCategory = "Digital currency"
	CategoryBanking         CurrencyCategory = "Online banking"
	CategoryMoneyTransfer   CurrencyCategory = "Money transfer"
	CategoryATMQR           CurrencyCategory = "ATM QR"
	CategoryExchangeBalance CurrencyCategory = "Crypto-exchange balance"
)

// Currency represents immutable currency reference data
type Currency struct {
	Code      string           `json:"code" db:"code"`
	Name      string           `json:"name" db:"name"`
	Category  CurrencyCategory `json:"category" db:"category"`
	IconURL   string           `json:"icon_url" db:"icon_url"`
	IsPopular bool             `json:"is_popular" db:"is_popular"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// IsCashLike reports whether the category counts as a cash-side leg
// for display rounding purposes.
func (c CurrencyCategory) IsCashLike() bool {
	switch c {
	case CategoryCash, CategoryBanking, CategoryMoneyTransfer, CategoryATMQR:
		return true
	}
	return false
}

// IsStablecoinCode reports whether a currency code is a USDT/USDC
// variant (USDTTRC20, USDCERC20, ...).
func IsStablecoinCode(code string) bool {
	return strings.HasPrefix(code, "USDT") || strings.HasPrefix(code, "USDC")
}
