package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"RhizaCore/internal/model"
	"RhizaCore/internal/notifier"
	"RhizaCore/internal/remote"
	"RhizaCore/internal/session"
	"RhizaCore/internal/ton"
)

// Sessions is the part of session.Manager the scheduler drives.
type Sessions interface {
	List() []session.Info
	ReconcileAll(ctx context.Context) error
}

// Sender delivers operator messages.
type Sender interface {
	SendWithRetry(ctx context.Context, text string) error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron     *cron.Cron
	sessions Sessions
	store    remote.BalanceStore
	sender   Sender
	clock    clockwork.Clock
	log      *slog.Logger
	ctx      context.Context
}

// New creates a Scheduler. sender may be nil when no operator chat is configured.
func New(ctx context.Context, sessions Sessions, store remote.BalanceStore, sender Sender, clock clockwork.Clock, log *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		store:    store,
		sender:   sender,
		clock:    clock,
		log:      log,
		ctx:      ctx,
	}
}

// RegisterAll registers the reconciliation sweep and the daily report.
func (s *Scheduler) RegisterAll(reconcileCron, reportCron string) error {
	if _, err := s.cron.AddFunc(reconcileCron, func() {
		if err := s.Reconcile(s.ctx); err != nil {
			s.log.Error("reconcile sweep failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("register reconcile task: %w", err)
	}
	if _, err := s.cron.AddFunc(reportCron, s.RunReportNow); err != nil {
		return fmt.Errorf("register report task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Reconcile runs balance reconciliation for every live session, then checks the
// ledger of funded users that are not logged in.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	s.log.Info("running reconcile sweep")
	var errs []error
	if err := s.sessions.ReconcileAll(ctx); err != nil {
		errs = append(errs, err)
	}

	live := make(map[int64]bool)
	for _, info := range s.sessions.List() {
		live[info.UserID] = true
	}
	users, err := s.store.ListActiveUsers(ctx)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("list active users: %w", err))...)
	}

	corrected := 0
	for _, u := range users {
		if live[u.ID] {
			continue
		}
		check, err := s.store.ReconcileBalance(ctx, u.ID, s.clock.Now())
		if err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", u.ID, err))
			continue
		}
		if check.Corrected {
			corrected++
			s.log.Warn("balance corrected", "user_id", u.ID, "recorded", check.Recorded, "calculated", check.Calculated)
		}
	}
	s.log.Info("reconcile sweep finished", "live", len(live), "offline", len(users), "corrected", corrected)
	return errors.Join(errs...)
}

// RunReportNow builds the daily report and sends it to the operator chat.
func (s *Scheduler) RunReportNow() {
	report, err := s.Report(s.ctx)
	if err != nil {
		s.log.Error("build daily report", "err", err)
		return
	}
	s.trySend(report)
}

// Report renders the daily earnings report.
func (s *Scheduler) Report(ctx context.Context) (string, error) {
	users, err := s.store.ListActiveUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("list active users: %w", err)
	}
	return notifier.FormatDailyReport(s.clock.Now(), s.sessions.List(), users), nil
}

// HandleCommand processes a bot command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command, args string) string {
	switch command {
	case "earnings":
		return s.earnings(ctx, args)
	case "sessions":
		return notifier.FormatSessionList(s.sessions.List())
	case "report":
		report, err := s.Report(ctx)
		if err != nil {
			return "❌ " + err.Error()
		}
		return report
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) earnings(ctx context.Context, wallet string) string {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return "Usage: /earnings &lt;wallet&gt;"
	}
	if err := ton.ValidateAddress(wallet); err != nil {
		return "❌ " + err.Error()
	}
	for _, info := range s.sessions.List() {
		if info.Wallet == wallet {
			return notifier.FormatEarnings(info)
		}
	}

	user, err := s.store.UserByWallet(ctx, wallet)
	if errors.Is(err, remote.ErrNotFound) {
		return "No user with this wallet."
	}
	if err != nil {
		s.log.Error("lookup wallet", "err", err)
		return "❌ lookup failed"
	}
	var stored model.ServerEarnings
	row, err := s.store.ReadEarnings(ctx, user.ID)
	switch {
	case err == nil:
		stored = *row
	case errors.Is(err, remote.ErrNotFound):
	default:
		s.log.Error("read earnings", "user_id", user.ID, "err", err)
		return "❌ lookup failed"
	}
	return notifier.FormatStoredEarnings(user, stored.CurrentEarnings, stored.LastUpdate)
}

func (s *Scheduler) trySend(text string) {
	if s.sender == nil {
		s.log.Debug("no operator chat configured, dropping message")
		return
	}
	if err := s.sender.SendWithRetry(s.ctx, text); err != nil {
		s.log.Error("send notification", "err", err)
	}
}
