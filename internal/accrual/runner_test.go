package accrual

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RhizaCore/internal/localstore"
	"RhizaCore/internal/logger"
	"RhizaCore/internal/model"
	"RhizaCore/internal/syncer"
)

func (f *fixture) runner(e *Engine) *Runner {
	s := syncer.New(f.remote, syncer.DefaultLimits, f.clock, logger.Discard())
	return NewRunner(e, s, f.remote, f.clock, DefaultIntervals, logger.Discard())
}

func TestSyncOnce_FailureRecoversServerValue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.remote.PutUser(model.User{ID: testUser, WalletAddress: testWallet, Balance: 1000, TotalEarned: 2})
	f.remote.PutEarnings(model.ServerEarnings{UserID: testUser, CurrentEarnings: 2, LastUpdate: epoch, StartDate: epoch})
	require.NoError(t, localstore.SaveEarningState(ctx, f.local, testWallet, model.EarningState{
		LastUpdate: epoch.UnixMilli(), CurrentEarnings: 10, IsActive: true,
	}))

	e := f.engine(1000)
	r := f.runner(e)
	require.NoError(t, e.Seed(ctx))
	require.Equal(t, 10.0, e.Earnings())

	f.remote.Fail = func(op string) error {
		if op == "WriteEarnings" {
			return errors.New("backend unavailable")
		}
		return nil
	}
	assert.Equal(t, syncer.Failed, r.SyncOnce(ctx))
	assert.Equal(t, 2.0, e.Earnings())

	cached, err := localstore.LoadEarningState(ctx, f.local, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 2.0, cached.CurrentEarnings)
}

func TestSyncOnce_SkipRecoversLastAcceptedValue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.engine(1000)
	r := f.runner(e)
	require.NoError(t, e.Seed(ctx))

	f.clock.Advance(30 * time.Second)
	e.Tick(ctx)
	synced := e.Earnings()
	require.Equal(t, syncer.Accepted, r.SyncOnce(ctx))

	f.clock.Advance(10 * time.Second)
	e.Tick(ctx)
	require.Greater(t, e.Earnings(), synced)

	assert.Equal(t, syncer.Skipped, r.SyncOnce(ctx))
	assert.Equal(t, synced, e.Earnings())
}

func TestSyncOnce_DefaultCadenceFitsHourlyLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.engine(1000)
	r := f.runner(e)
	require.NoError(t, e.Seed(ctx))

	for i := 1; i <= 24; i++ {
		f.clock.Advance(DefaultIntervals.Sync)
		e.Tick(ctx)
		require.Equal(t, syncer.Accepted, r.SyncOnce(ctx), "sync %d", i)
	}
}

func TestSyncOnce_MinuteCadenceExhaustsHourlyLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.engine(1000)
	r := f.runner(e)
	require.NoError(t, e.Seed(ctx))

	for i := 1; i <= syncer.DefaultLimits.MaxPerWindow; i++ {
		f.clock.Advance(syncer.DefaultLimits.SyncInterval)
		e.Tick(ctx)
		require.Equal(t, syncer.Accepted, r.SyncOnce(ctx), "sync %d", i)
	}
	f.clock.Advance(syncer.DefaultLimits.SyncInterval)
	e.Tick(ctx)
	synced := e.Snapshot().CurrentEarnings
	assert.Equal(t, syncer.Skipped, r.SyncOnce(ctx))
	assert.Less(t, e.Earnings(), synced, "a skipped sync rolls back to the last accepted value")
}

func TestSyncOnce_UnseededIsSkipped(t *testing.T) {
	f := newFixture()
	r := f.runner(f.engine(1000))
	assert.Equal(t, syncer.Skipped, r.SyncOnce(context.Background()))
	assert.Equal(t, 0, f.remote.Writes())
}

func TestFlush_NoRecovery(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	e := f.engine(1000)
	r := f.runner(e)
	require.NoError(t, e.Seed(ctx))
	f.clock.Advance(time.Minute)

	require.Equal(t, syncer.Accepted, r.Flush(ctx))
	total, err := f.remote.ReadTotalEarned(ctx, testUser)
	require.NoError(t, err)
	assert.InDelta(t, e.EarningsAt(f.clock.Now()), total, tolerance)

	before := e.Earnings()
	assert.Equal(t, syncer.Skipped, r.Flush(ctx))
	assert.Equal(t, before, e.Earnings(), "flush never resets the counter")
}

func TestReconcile_SeedsWhenBalanceTurnsPositive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.remote.PutUser(model.User{ID: testUser, WalletAddress: testWallet, Balance: 0})
	f.remote.AddDeposit(testUser, 500)

	e := f.engine(0)
	r := f.runner(e)
	require.NoError(t, r.Reconcile(ctx))

	assert.Equal(t, 500.0, e.Balance())
	assert.Equal(t, Seeded, e.Phase())
	require.Len(t, f.remote.Discrepancies(), 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	e := f.engine(1000)
	require.NoError(t, e.Seed(ctx))
	r := f.runner(e)

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 3))
	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return e.Phase() == Running }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
