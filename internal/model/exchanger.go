package model

import "time"

// ExchangerStatus is the lifecycle status of an exchanger's feed
type ExchangerStatus string

const (
	StatusActive          ExchangerStatus = "active"
	StatusDisabled        ExchangerStatus = "disabled"
	StatusScam            ExchangerStatus = "scam"
	StatusSkip            ExchangerStatus = "skip"
	StatusRobotCheckError ExchangerStatus = "robot-check-error"
	StatusTimeoutError    ExchangerStatus = "timeout-error"
	StatusInactive        ExchangerStatus = "inactive"
)

// Exchanger represents one feed-publishing exchanger. A single row
// serves all segments (cash, non-cash, partner).
type Exchanger struct {
	ID            int             `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	EnName        string          `json:"en_name" db:"en_name"`
	PartnerLink   string          `json:"partner_link" db:"partner_link"`
	FeedURL       string          `json:"feed_url" db:"feed_url"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	IsVIP         bool            `json:"is_vip" db:"is_vip"`
	Status        ExchangerStatus `json:"status" db:"status"`
	TimeoutSec    int             `json:"timeout_sec" db:"timeout_sec"`
	CreatePeriod  int             `json:"create_period_sec" db:"create_period_sec"`
	UpdatePeriod  int             `json:"update_period_sec" db:"update_period_sec"`
	RescanPeriod  int             `json:"blacklist_period_hrs" db:"blacklist_period_hrs"`
	ReserveAmount string          `json:"reserve_amount" db:"reserve_amount"`
	Age           string          `json:"age" db:"age"`
	CourseCount   int             `json:"course_count" db:"course_count"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty" db:"updated_at"`
}

// SyncEligible reports whether periodic sync should run at all for the
// exchanger's current status.
func (e *Exchanger) SyncEligible() bool {
	switch e.Status {
	case StatusDisabled, StatusScam, StatusSkip:
		return false
	}
	return true
}

// ExchangerPeriods carries the three independently configurable refresh
// periods. Zero disables the corresponding trigger.
type ExchangerPeriods struct {
	CreatePeriodSec    int `json:"create_period_sec" binding:"min=0"`
	UpdatePeriodSec    int `json:"update_period_sec" binding:"min=0"`
	BlacklistPeriodHrs int `json:"blacklist_period_hrs" binding:"min=0"`
}
