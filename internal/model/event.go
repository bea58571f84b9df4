package model

import "time"

// SyncCompletedEvent is published to Kafka after each completed sync run
type SyncCompletedEvent struct {
	RunID           string    `json:"run_id"`
	ExchangerID     int       `json:"exchanger_id"`
	ExchangerName   string    `json:"exchanger_name"`
	CashUpserted    int       `json:"cash_upserted"`
	NonCashUpserted int       `json:"non_cash_upserted"`
	Deactivated     int       `json:"deactivated"`
	Blacklisted     int       `json:"blacklisted"`
	Duration        float64   `json:"duration_seconds"`
	CompletedAt     time.Time `json:"completed_at"`
}
