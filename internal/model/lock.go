package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// LockRemaining describes how long a staking lock has left until unlock.
type LockRemaining struct {
	Locked        bool   `json:"is_locked"`
	TimeRemaining string `json:"time_remaining"`
	DaysRemaining int    `json:"days_remaining"`
}

// RemainingUntil reports the time left before unlock as of now. Partial days
// round up; months are counted as 30 days and years as 365.
func RemainingUntil(unlock, now time.Time) LockRemaining {
	diff := unlock.Sub(now)
	if diff <= 0 {
		return LockRemaining{TimeRemaining: "Unlocked"}
	}

	days := int(math.Ceil(diff.Hours() / 24))
	var parts []string
	if y := days / 365; y > 0 {
		parts = append(parts, fmt.Sprintf("%dy", y))
	}
	if m := (days % 365) / 30; m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if d := days % 30; d > 0 {
		parts = append(parts, fmt.Sprintf("%dd", d))
	}
	return LockRemaining{Locked: true, TimeRemaining: strings.Join(parts, " "), DaysRemaining: days}
}

// ParseTimestamp parses a PostgREST timestamp, with or without a zone offset.
// Values without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}
