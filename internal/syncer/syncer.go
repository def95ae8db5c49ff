package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"RhizaCore/internal/metrics"
	"RhizaCore/internal/remote"
)

// Outcome is the result of one Sync call.
type Outcome int

const (
	Accepted Outcome = iota
	Skipped          // rate-limited, backend not contacted
	Failed           // backend returned an error
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Accepted reports whether the write reached the balance store.
func (o Outcome) Accepted() bool { return o == Accepted }

// Syncer pushes one session's earnings to the balance store under its own Limiter.
type Syncer struct {
	store   remote.BalanceStore
	limiter *Limiter
	clock   clockwork.Clock
	log     *slog.Logger
}

func New(store remote.BalanceStore, limits Limits, clock clockwork.Clock, log *slog.Logger) *Syncer {
	return &Syncer{
		store:   store,
		limiter: NewLimiter(limits, clock),
		clock:   clock,
		log:     log,
	}
}

// Sync writes earnings for userID unless the limiter says no. Errors are logged, never returned.
func (s *Syncer) Sync(ctx context.Context, userID int64, earnings float64) Outcome {
	if !s.limiter.Allow() {
		s.log.Debug("rate limit reached, skipping sync", "user_id", userID)
		metrics.RecordSync(Skipped.String())
		return Skipped
	}
	if err := s.store.WriteEarnings(ctx, userID, earnings, s.clock.Now()); err != nil {
		s.log.Error("sync failed", "user_id", userID, "error", err)
		metrics.RecordSync(Failed.String())
		return Failed
	}
	metrics.RecordSync(Accepted.String())
	return Accepted
}

// Recover returns the last authoritative total for userID.
func (s *Syncer) Recover(ctx context.Context, userID int64) (float64, error) {
	total, err := s.store.ReadTotalEarned(ctx, userID)
	metrics.RecordRecovery(err)
	if err != nil {
		return 0, fmt.Errorf("recover earnings for user %d: %w", userID, err)
	}
	return total, nil
}
