package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RhizaCore/internal/accrual"
	"RhizaCore/internal/calculator"
	"RhizaCore/internal/localstore"
	"RhizaCore/internal/logger"
	"RhizaCore/internal/metrics"
	"RhizaCore/internal/model"
	"RhizaCore/internal/remote"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T) (*Manager, *remote.MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	store := remote.NewMemoryStore()
	store.PutUser(model.User{ID: 1, WalletAddress: "EQalice", Username: "alice", Balance: 1000})
	store.AddDeposit(1, 1000)
	store.PutUser(model.User{ID: 2, WalletAddress: "EQbob", Username: "bob", Balance: 0})

	m := NewManager(Options{
		Remote:  store,
		Local:   localstore.NewMemoryStore(),
		Clock:   clock,
		BaseROI: calculator.DefaultBaseROI,
		Logger:  logger.Discard(),
	})
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m, store, clock
}

func TestLogin_OneSessionPerUser(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	s1, err := m.Login(ctx, LoginRequest{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, accrual.Seeded, s1.Engine().Phase())
	assert.Equal(t, "EQalice", s1.Engine().Wallet())

	s2, err := m.Login(ctx, LoginRequest{WalletAddress: "EQalice"})
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID)
	assert.Len(t, m.List(), 1)
}

func TestLogin_Errors(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	_, err := m.Login(ctx, LoginRequest{})
	assert.ErrorIs(t, err, ErrInvalidLogin)

	_, err = m.Login(ctx, LoginRequest{UserID: 99})
	assert.ErrorIs(t, err, ErrUserNotFound)

	store.Fail = func(op string) error {
		if op == "ReadEarnings" {
			return errors.New("timeout")
		}
		return nil
	}
	_, err = m.Login(ctx, LoginRequest{UserID: 1})
	require.Error(t, err)
	assert.Empty(t, m.List())
}

func TestLogin_WalletMismatchRejected(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	_, err := m.Login(ctx, LoginRequest{UserID: 1, WalletAddress: "EQbob"})
	assert.ErrorIs(t, err, ErrWalletMismatch)
	assert.Empty(t, m.List())

	s, err := m.Login(ctx, LoginRequest{UserID: 1, WalletAddress: "EQalice"})
	require.NoError(t, err)

	_, err = m.Login(ctx, LoginRequest{UserID: 1, WalletAddress: "EQbob"})
	assert.ErrorIs(t, err, ErrWalletMismatch, "an existing session is not handed out either")
	assert.Equal(t, "EQalice", s.Engine().Wallet())
}

func TestLogin_IgnoresOtherWalletCache(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	rich := model.EarningState{LastUpdate: epoch.UnixMilli(), CurrentEarnings: 1e6, IsActive: true}
	require.NoError(t, localstore.SaveEarningState(ctx, m.opts.Local, "EQbob", rich))

	_, err := m.Login(ctx, LoginRequest{UserID: 1, WalletAddress: "EQbob"})
	require.ErrorIs(t, err, ErrWalletMismatch)

	s, err := m.Login(ctx, LoginRequest{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Engine().Earnings())

	bob, err := localstore.LoadEarningState(ctx, m.opts.Local, "EQbob")
	require.NoError(t, err)
	assert.Equal(t, 1e6, bob.CurrentEarnings, "bob's cache is untouched")
}

func TestLogin_WalletlessUsersShareNoCache(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()
	store.PutUser(model.User{ID: 3, Username: "carol", Balance: 1000})
	store.PutUser(model.User{ID: 4, Username: "dave", Balance: 1000})

	// a value left under the empty-wallet key must never seed anyone
	stale := model.EarningState{LastUpdate: epoch.UnixMilli(), CurrentEarnings: 5000, IsActive: true}
	require.NoError(t, localstore.SaveEarningState(ctx, m.opts.Local, "", stale))

	carol, err := m.Login(ctx, LoginRequest{UserID: 3})
	require.NoError(t, err)
	dave, err := m.Login(ctx, LoginRequest{UserID: 4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, carol.Engine().Earnings())
	assert.Equal(t, 0.0, dave.Engine().Earnings())

	require.NoError(t, m.SetVisibility(ctx, carol.ID, model.Hidden))
	_, err = localstore.LoadOfflineSnapshot(ctx, m.opts.Local, "")
	assert.ErrorIs(t, err, localstore.ErrNotFound, "no snapshot for a walletless user")
	require.NoError(t, m.SetVisibility(ctx, carol.ID, model.Visible))

	cached, err := localstore.LoadEarningState(ctx, m.opts.Local, "")
	require.NoError(t, err)
	assert.Equal(t, stale, *cached, "walletless sessions never write the shared key")
}

func TestLogin_ZeroBalanceIsNotSeeded(t *testing.T) {
	m, _, _ := newManager(t)
	s, err := m.Login(context.Background(), LoginRequest{UserID: 2})
	require.NoError(t, err)
	assert.Equal(t, accrual.Uninitialized, s.Engine().Phase())

	earnings, err := m.Earnings(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, earnings)
}

func TestEarnings_ProjectsToNow(t *testing.T) {
	m, _, clock := newManager(t)
	s, err := m.Login(context.Background(), LoginRequest{UserID: 1})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	earnings, err := m.Earnings(s.ID)
	require.NoError(t, err)
	assert.InDelta(t, calculator.ComputeRate(1000, calculator.DefaultBaseROI, 0)*60, earnings, 1e-9)

	_, err = m.Earnings("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSetVisibility(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	s, err := m.Login(ctx, LoginRequest{UserID: 1})
	require.NoError(t, err)

	require.NoError(t, m.SetVisibility(ctx, s.ID, model.Hidden))
	assert.True(t, s.Engine().Hidden())
	require.NoError(t, m.SetVisibility(ctx, s.ID, model.Visible))
	assert.False(t, s.Engine().Hidden())

	assert.ErrorIs(t, m.SetVisibility(ctx, s.ID, "minimized"), ErrInvalidVisibility)
	assert.ErrorIs(t, m.SetVisibility(ctx, "nope", model.Hidden), ErrSessionNotFound)
}

func TestLogout_FlushesAndStops(t *testing.T) {
	m, store, clock := newManager(t)
	ctx := context.Background()
	s, err := m.Login(ctx, LoginRequest{UserID: 1})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	require.NoError(t, m.Logout(ctx, s.ID))
	assert.Equal(t, 1, store.Writes())

	total, err := store.ReadTotalEarned(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, calculator.ComputeRate(1000, calculator.DefaultBaseROI, 0)*120, total, 1e-9)

	assert.ErrorIs(t, m.Logout(ctx, s.ID), ErrSessionNotFound)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s2, err := m.Login(ctx, LoginRequest{UserID: 1})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, s2.ID)
}

func TestLogout_ExpiredContextStillRemovesSession(t *testing.T) {
	m, _, _ := newManager(t)
	s, err := m.Login(context.Background(), LoginRequest{UserID: 1})
	require.NoError(t, err)
	active := testutil.ToFloat64(metrics.ActiveSessions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = m.Logout(ctx, s.ID)

	assert.Equal(t, active-1, testutil.ToFloat64(metrics.ActiveSessions))
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Logout(context.Background(), s.ID), ErrSessionNotFound)
}

func TestReconcileAll(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()
	alice, err := m.Login(ctx, LoginRequest{UserID: 1})
	require.NoError(t, err)
	bob, err := m.Login(ctx, LoginRequest{UserID: 2})
	require.NoError(t, err)

	store.AddDeposit(2, 250)
	require.NoError(t, m.ReconcileAll(ctx))
	assert.Equal(t, 1000.0, alice.Engine().Balance())
	assert.Equal(t, 250.0, bob.Engine().Balance())
	assert.Equal(t, accrual.Seeded, bob.Engine().Phase())

	store.Fail = func(op string) error {
		if op == "ReconcileBalance" {
			return errors.New("db down")
		}
		return nil
	}
	assert.Error(t, m.ReconcileAll(ctx))
}

func TestShutdown(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	_, err := m.Login(ctx, LoginRequest{UserID: 1})
	require.NoError(t, err)
	_, err = m.Login(ctx, LoginRequest{UserID: 2})
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(ctx))
	assert.Empty(t, m.List())
}
