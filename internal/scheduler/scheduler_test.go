package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RhizaCore/internal/logger"
	"RhizaCore/internal/model"
	"RhizaCore/internal/remote"
	"RhizaCore/internal/session"
)

const aliceWallet = "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t"
const bobWallet = "UQBvW8Z5huBkMJYdnfAEM5JqTNkuWX3diqYENkWsIL0XggGG"

type fakeSessions struct {
	infos         []session.Info
	reconcileErr  error
	reconcileRuns int
}

func (f *fakeSessions) List() []session.Info { return f.infos }

func (f *fakeSessions) ReconcileAll(context.Context) error {
	f.reconcileRuns++
	return f.reconcileErr
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendWithRetry(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func setup(t *testing.T) (*Scheduler, *fakeSessions, *remote.MemoryStore, *fakeSender) {
	t.Helper()
	store := remote.NewMemoryStore()
	store.PutUser(model.User{ID: 1, WalletAddress: aliceWallet, Balance: 100})
	store.AddDeposit(1, 100)
	store.PutUser(model.User{ID: 2, WalletAddress: bobWallet, Username: "bob", Balance: 80})
	store.AddDeposit(2, 50)
	store.PutUser(model.User{ID: 3, Balance: 0})

	sessions := &fakeSessions{infos: []session.Info{
		{ID: "s1", UserID: 1, Wallet: aliceWallet, Earnings: 0.5, Balance: 100, Phase: "running"},
	}}
	sender := &fakeSender{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	s := New(context.Background(), sessions, store, sender, clock, logger.Discard())
	return s, sessions, store, sender
}

func TestReconcile_LiveSessionsAndOfflineLedger(t *testing.T) {
	s, sessions, store, _ := setup(t)

	require.NoError(t, s.Reconcile(context.Background()))
	assert.Equal(t, 1, sessions.reconcileRuns)

	// Only bob is offline and his ledger says 50.
	d := store.Discrepancies()
	require.Len(t, d, 1)
	assert.Equal(t, int64(2), d[0].UserID)
	assert.InDelta(t, 80, d[0].Recorded, 1e-9)
	assert.InDelta(t, 50, d[0].Calculated, 1e-9)
}

func TestReconcile_CollectsErrors(t *testing.T) {
	s, sessions, store, _ := setup(t)
	sessions.reconcileErr = errors.New("live failed")
	store.Fail = func(op string) error {
		if op == "ReconcileBalance" {
			return errors.New("db down")
		}
		return nil
	}

	err := s.Reconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live failed")
	assert.Contains(t, err.Error(), "user 2: db down")
}

func TestRunReportNow_SendsReport(t *testing.T) {
	s, _, _, sender := setup(t)

	s.RunReportNow()
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "2026-10-15")
	assert.Contains(t, sender.sent[0], "Active sessions: 1")
	assert.Contains(t, sender.sent[0], "Funded accounts: 2")
}

func TestRunReportNow_NoSender(t *testing.T) {
	store := remote.NewMemoryStore()
	s := New(context.Background(), &fakeSessions{}, store, nil, nil, logger.Discard())
	assert.NotPanics(t, s.RunReportNow)
}

func TestRegisterAll_RejectsBadSpec(t *testing.T) {
	s, _, _, _ := setup(t)
	assert.Error(t, s.RegisterAll("not a cron", "0 0 9 * * *"))
	assert.NoError(t, s.RegisterAll("0 30 * * * *", "0 0 9 * * *"))
	s.Start()
	s.Stop()
}

func TestHandleCommand(t *testing.T) {
	s, _, store, _ := setup(t)
	ctx := context.Background()
	store.PutEarnings(model.ServerEarnings{UserID: 2, CurrentEarnings: 1.25, LastUpdate: time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)})

	live := s.HandleCommand(ctx, "earnings", aliceWallet)
	assert.Contains(t, live, "0.500000 TON")

	offline := s.HandleCommand(ctx, "earnings", bobWallet)
	assert.Contains(t, offline, "@bob</b> (offline)")
	assert.Contains(t, offline, "1.250000 TON")
	assert.Contains(t, offline, "2026-10-14 08:00")

	assert.Contains(t, s.HandleCommand(ctx, "earnings", ""), "Usage")
	assert.Contains(t, s.HandleCommand(ctx, "earnings", "nope"), "invalid TON address")
	assert.Equal(t, "No user with this wallet.",
		s.HandleCommand(ctx, "earnings", "EQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"))

	assert.Contains(t, s.HandleCommand(ctx, "sessions", ""), "Active sessions")
	assert.Contains(t, s.HandleCommand(ctx, "report", ""), "daily report")
	assert.Contains(t, s.HandleCommand(ctx, "help", ""), "/earnings")
}
