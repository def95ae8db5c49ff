package accrual

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"RhizaCore/internal/remote"
	"RhizaCore/internal/syncer"
)

// Intervals are the session timer periods.
type Intervals struct {
	Tick      time.Duration
	Sync      time.Duration
	Reconcile time.Duration
}

// DefaultIntervals ticks every second, syncs every five minutes and reconciles the balance hourly.
var DefaultIntervals = Intervals{
	Tick:      time.Second,
	Sync:      5 * time.Minute,
	Reconcile: time.Hour,
}

// Runner drives one Engine: accrual ticks, periodic sync with recovery, and balance reconciliation.
type Runner struct {
	engine    *Engine
	syncer    *syncer.Syncer
	remote    remote.BalanceStore
	clock     clockwork.Clock
	intervals Intervals
	log       *slog.Logger
}

func NewRunner(engine *Engine, s *syncer.Syncer, store remote.BalanceStore, clock clockwork.Clock, intervals Intervals, log *slog.Logger) *Runner {
	return &Runner{
		engine:    engine,
		syncer:    s,
		remote:    store,
		clock:     clock,
		intervals: intervals,
		log:       log.With("user_id", engine.UserID()),
	}
}

func (r *Runner) Engine() *Engine { return r.engine }

// Run blocks until ctx is cancelled. Every ticker it creates is stopped before it returns.
func (r *Runner) Run(ctx context.Context) {
	tick := r.clock.NewTicker(r.intervals.Tick)
	defer tick.Stop()
	sync := r.clock.NewTicker(r.intervals.Sync)
	defer sync.Stop()
	reconcile := r.clock.NewTicker(r.intervals.Reconcile)
	defer reconcile.Stop()

	r.log.Debug("session runner started")
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("session runner stopped")
			return
		case <-tick.Chan():
			r.engine.Tick(ctx)
		case <-sync.Chan():
			r.SyncOnce(ctx)
		case <-reconcile.Chan():
			if err := r.Reconcile(ctx); err != nil {
				r.log.Warn("balance reconciliation failed", "error", err)
			}
		}
	}
}

// SyncOnce pushes the counter and, when the push is not accepted, replaces the counter with server truth.
func (r *Runner) SyncOnce(ctx context.Context) syncer.Outcome {
	if r.engine.Phase() == Uninitialized {
		return syncer.Skipped
	}
	out := r.syncer.Sync(ctx, r.engine.UserID(), r.engine.Earnings())
	if out.Accepted() {
		return out
	}
	total, err := r.syncer.Recover(ctx, r.engine.UserID())
	if err != nil {
		r.log.Error("recovery failed", "outcome", out.String(), "error", err)
		return out
	}
	if err := r.engine.Reset(ctx, total); err != nil {
		r.log.Error("recovery reset failed", "error", err)
		return out
	}
	r.log.Info("earnings reset to server value", "outcome", out.String(), "earnings", total)
	return out
}

// Reconcile corrects the balance from the deposit ledger and applies it to the engine,
// seeding the engine when the balance turns positive for the first time.
func (r *Runner) Reconcile(ctx context.Context) error {
	userID := r.engine.UserID()
	check, err := r.remote.ReconcileBalance(ctx, userID, r.clock.Now())
	if err != nil {
		return err
	}
	if check.Corrected {
		r.log.Warn("balance discrepancy corrected", "recorded", check.Recorded, "calculated", check.Calculated)
	}
	user, err := r.remote.ReadUser(ctx, userID)
	if err != nil {
		return err
	}
	r.engine.SetBalance(user.Balance)
	if r.engine.Phase() == Uninitialized && user.Balance > 0 {
		if err := r.engine.Seed(ctx); err != nil && !errors.Is(err, ErrNoBalance) {
			return err
		}
	}
	return nil
}

// Flush is the best-effort final sync on logout. No recovery is attempted.
func (r *Runner) Flush(ctx context.Context) syncer.Outcome {
	if r.engine.Phase() == Uninitialized {
		return syncer.Skipped
	}
	earnings := r.engine.EarningsAt(r.clock.Now())
	if earnings <= 0 {
		return syncer.Skipped
	}
	return r.syncer.Sync(ctx, r.engine.UserID(), earnings)
}
