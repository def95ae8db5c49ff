package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RhizaCore/internal/model"
)

var _ BalanceStore = (*MemoryStore)(nil)
var _ BalanceStore = (*PostgresStore)(nil)

func TestMemoryStore_InitIsOneTime(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	t0 := time.Unix(1_700_000_000, 0)

	_, err := m.ReadEarnings(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.InitEarnings(ctx, 1, t0))
	require.NoError(t, m.WriteEarnings(ctx, 1, 5, t0.Add(time.Minute)))
	require.NoError(t, m.InitEarnings(ctx, 1, t0.Add(time.Hour)))

	e, err := m.ReadEarnings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, e.CurrentEarnings)
	assert.True(t, e.StartDate.Equal(t0))
	assert.True(t, e.LastUpdate.Equal(t0.Add(time.Minute)))
}

func TestMemoryStore_WriteMirrorsTotalEarned(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.PutUser(model.User{ID: 7, WalletAddress: "EQwallet", Balance: 100})

	require.NoError(t, m.WriteEarnings(ctx, 7, 12.5, time.Now()))
	total, err := m.ReadTotalEarned(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 12.5, total)
	assert.Equal(t, 1, m.Writes())

	u, err := m.UserByWallet(ctx, "EQwallet")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)

	_, err = m.UserByWallet(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.ReadTotalEarned(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_FailInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	boom := errors.New("boom")
	m.Fail = func(op string) error {
		if op == "WriteEarnings" {
			return boom
		}
		return nil
	}

	assert.ErrorIs(t, m.WriteEarnings(ctx, 1, 1, time.Now()), boom)
	assert.Equal(t, 0, m.Writes())
	assert.NoError(t, m.InitEarnings(ctx, 1, time.Now()))
}

func TestMemoryStore_ReconcileBalance(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.PutUser(model.User{ID: 1, Balance: 150})
	m.AddDeposit(1, 100)
	m.AddDeposit(1, 80)
	m.AddWithdrawal(1, 30)

	check, err := m.ReconcileBalance(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.False(t, check.Corrected, "150 == 100+80-30")

	m.AddWithdrawal(1, 50)
	check, err = m.ReconcileBalance(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.True(t, check.Corrected)
	assert.Equal(t, 100.0, check.Calculated)

	u, err := m.ReadUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, u.Balance)
	require.Len(t, m.Discrepancies(), 1)
	assert.Equal(t, 150.0, m.Discrepancies()[0].Recorded)

	_, err = m.ReconcileBalance(ctx, 2, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListActiveUsers(t *testing.T) {
	m := NewMemoryStore()
	m.PutUser(model.User{ID: 3, Balance: 10})
	m.PutUser(model.User{ID: 1, Balance: 5})
	m.PutUser(model.User{ID: 2, Balance: 0})

	users, err := m.ListActiveUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(1), users[0].ID)
	assert.Equal(t, int64(3), users[1].ID)
}
