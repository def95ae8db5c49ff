package calculator

import (
	"math"
	"time"
)

// DefaultBaseROI is the daily base return applied to a staked balance.
const DefaultBaseROI = 0.0306

const secondsPerDay = 86400

// TenureMultiplier maps days staked to the reward multiplier.
// Negative values (clock skew) fall into the first tier.
func TenureMultiplier(daysStaked int) float64 {
	switch {
	case daysStaked <= 7:
		return 1.0
	case daysStaked <= 30:
		return 1.1
	default:
		return 1.25
	}
}

// ComputeRate returns the accrual rate in units per second.
func ComputeRate(balance, baseROI float64, daysStaked int) float64 {
	if balance <= 0 || baseROI <= 0 {
		return 0
	}
	dailyReward := balance * TenureMultiplier(daysStaked) * baseROI
	return dailyReward / secondsPerDay
}

// DaysStaked returns the whole days elapsed between start and now.
func DaysStaked(start, now time.Time) int {
	return int(math.Floor(now.Sub(start).Hours() / 24))
}

// Accrue returns the earnings produced by rate over elapsed.
func Accrue(rate float64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return rate * elapsed.Seconds()
}
