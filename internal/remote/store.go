package remote

import (
	"context"
	"errors"
	"time"

	"RhizaCore/internal/model"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("remote: not found")

// balanceTolerance is the largest recorded/calculated difference treated as equal.
const balanceTolerance = 0.000001

// BalanceStore is the authoritative record of per-user earnings.
type BalanceStore interface {
	// ReadEarnings returns the user_earnings row, or ErrNotFound for a fresh account.
	ReadEarnings(ctx context.Context, userID int64) (*model.ServerEarnings, error)
	// InitEarnings creates the user_earnings row with zero earnings.
	InitEarnings(ctx context.Context, userID int64, now time.Time) error
	// WriteEarnings upserts user_earnings and mirrors the value into users.total_earned.
	WriteEarnings(ctx context.Context, userID int64, earnings float64, now time.Time) error
	// ReadTotalEarned returns users.total_earned.
	ReadTotalEarned(ctx context.Context, userID int64) (float64, error)
	ReadUser(ctx context.Context, userID int64) (*model.User, error)
	UserByWallet(ctx context.Context, wallet string) (*model.User, error)
	// ListActiveUsers returns every user with a positive balance.
	ListActiveUsers(ctx context.Context) ([]model.User, error)
	// ReconcileBalance recomputes users.balance from completed deposits minus completed withdrawals,
	// recording a balance_discrepancies row and correcting the balance when they differ.
	ReconcileBalance(ctx context.Context, userID int64, now time.Time) (*model.BalanceCheck, error)
	Close()
}
