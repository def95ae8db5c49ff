package model

import "time"

// EarningState is the in-memory accrual state owned by one session.
type EarningState struct {
	LastUpdate      int64   `json:"lastUpdate"` // unix ms
	CurrentEarnings float64 `json:"currentEarnings"`
	BaseEarningRate float64 `json:"baseEarningRate"` // units per second
	IsActive        bool    `json:"isActive"`
	StartDate       int64   `json:"startDate,omitempty"` // unix ms, set once
}

// OfflineSnapshot is written when a session goes hidden and consumed when it becomes visible again.
type OfflineSnapshot struct {
	LastActiveTimestamp int64   `json:"lastActiveTimestamp"` // unix ms
	BaseEarningRate     float64 `json:"baseEarningRate"`
}

// ServerEarnings is the authoritative user_earnings row.
type ServerEarnings struct {
	UserID          int64
	CurrentEarnings float64
	LastUpdate      time.Time
	StartDate       time.Time
}

// Visibility mirrors the Mini-App document visibility state.
type Visibility string

const (
	Visible Visibility = "visible"
	Hidden  Visibility = "hidden"
)

// UnixMilli converts a time to the millisecond timestamps stored in EarningState.
func UnixMilli(t time.Time) int64 { return t.UnixMilli() }

// FromUnixMilli is the inverse of UnixMilli.
func FromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms) }

// BalanceCheck is the outcome of recomputing a user's balance from completed deposits and withdrawals.
type BalanceCheck struct {
	UserID     int64   `json:"user_id"`
	Recorded   float64 `json:"recorded_balance"`
	Calculated float64 `json:"calculated_balance"`
	Corrected  bool    `json:"corrected"`
}
