package accrual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"RhizaCore/internal/calculator"
	"RhizaCore/internal/localstore"
	"RhizaCore/internal/metrics"
	"RhizaCore/internal/model"
	"RhizaCore/internal/remote"
)

var (
	// ErrNotSeeded is returned by operations that need a seeded engine.
	ErrNotSeeded = errors.New("accrual: engine not seeded")
	// ErrNoBalance is returned by Seed when the backing balance is not positive.
	ErrNoBalance = errors.New("accrual: balance must be positive to seed")
)

// Phase is the engine lifecycle state.
type Phase int

const (
	Uninitialized Phase = iota
	Seeded
	Running
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Seeded:
		return "seeded"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Config wires an Engine to its user and collaborators.
type Config struct {
	UserID  int64
	Wallet  string
	Balance float64
	BaseROI float64
	Clock   clockwork.Clock
	Local   localstore.Store
	Remote  remote.BalanceStore
	Logger  *slog.Logger
}

// Engine advances one session's earnings counter. All methods are safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	balance float64
	state   model.EarningState
	phase   Phase
	hidden  bool
	// hiddenAt and hiddenRate mirror the offline snapshot written by Hide.
	hiddenAt   time.Time
	hiddenRate float64
	observers  map[int]func(float64)
	nextObs    int
	log        *slog.Logger
}

func NewEngine(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.BaseROI == 0 {
		cfg.BaseROI = calculator.DefaultBaseROI
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		balance:   cfg.Balance,
		observers: make(map[int]func(float64)),
		log:       log.With("user_id", cfg.UserID),
	}
}

// Seed initializes the counter from the balance store and the local cache.
//
// The projection starts from the larger of the server value and the cached value, and
// the elapsed time is measured from the timestamp that belongs to that value, so seeding
// twice in a row yields the same counter.
func (e *Engine) Seed(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.balance <= 0 {
		return ErrNoBalance
	}
	now := e.cfg.Clock.Now()

	server, err := e.cfg.Remote.ReadEarnings(ctx, e.cfg.UserID)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		if err := e.cfg.Remote.InitEarnings(ctx, e.cfg.UserID, now); err != nil {
			return fmt.Errorf("init earnings: %w", err)
		}
		server = &model.ServerEarnings{UserID: e.cfg.UserID, LastUpdate: now, StartDate: now}
		e.log.Info("initialized earnings for fresh account")
	case err != nil:
		return fmt.Errorf("read earnings: %w", err)
	}

	base, from := server.CurrentEarnings, server.LastUpdate
	if e.cached() {
		cached, err := localstore.LoadEarningState(ctx, e.cfg.Local, e.cfg.Wallet)
		switch {
		case err == nil:
			if cached.CurrentEarnings > base {
				base, from = cached.CurrentEarnings, model.FromUnixMilli(cached.LastUpdate)
			}
		case !errors.Is(err, localstore.ErrNotFound):
			e.log.Warn("ignoring unreadable local earnings", "error", err)
		}
	}

	rate := calculator.ComputeRate(e.balance, e.cfg.BaseROI, calculator.DaysStaked(server.StartDate, now))
	e.state = model.EarningState{
		LastUpdate:      model.UnixMilli(now),
		CurrentEarnings: base + calculator.Accrue(rate, now.Sub(from)),
		BaseEarningRate: rate,
		IsActive:        true,
		StartDate:       model.UnixMilli(server.StartDate),
	}
	e.phase = Seeded
	e.persist(ctx)

	e.log.Info("earnings seeded", "earnings", e.state.CurrentEarnings, "rate", rate)
	e.publishLocked()
	return nil
}

// Tick advances the counter by the wall-clock time since the last update.
// It does nothing before Seed and while the session is hidden.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == Uninitialized || e.hidden {
		return
	}
	e.advance(e.cfg.Clock.Now())
	e.phase = Running
	e.persist(ctx)
	e.publishLocked()
}

// advance re-derives the rate from the tenure and accrues up to now.
func (e *Engine) advance(now time.Time) {
	rate := e.rateAt(now)
	e.state.CurrentEarnings += calculator.Accrue(rate, now.Sub(model.FromUnixMilli(e.state.LastUpdate)))
	e.state.BaseEarningRate = rate
	e.state.LastUpdate = model.UnixMilli(now)
}

func (e *Engine) rateAt(now time.Time) float64 {
	if !e.state.IsActive {
		return 0
	}
	days := calculator.DaysStaked(model.FromUnixMilli(e.state.StartDate), now)
	return calculator.ComputeRate(e.balance, e.cfg.BaseROI, days)
}

// Hide records the offline snapshot. Accrual pauses until Show.
func (e *Engine) Hide(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == Uninitialized || e.hidden || !e.state.IsActive {
		return
	}
	now := e.cfg.Clock.Now()
	e.advance(now)
	e.hidden = true
	e.hiddenAt = now
	e.hiddenRate = e.state.BaseEarningRate
	e.persist(ctx)

	if !e.cached() {
		return
	}
	snap := model.OfflineSnapshot{LastActiveTimestamp: model.UnixMilli(now), BaseEarningRate: e.hiddenRate}
	if err := localstore.SaveOfflineSnapshot(ctx, e.cfg.Local, e.cfg.Wallet, snap); err != nil {
		e.log.Error("failed to save offline snapshot", "error", err)
	}
}

// Show credits the time spent hidden and resumes accrual.
func (e *Engine) Show(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hidden {
		return
	}
	e.hidden = false
	now := e.cfg.Clock.Now()

	snap := e.offlineSnapshot(ctx)
	if e.state.IsActive {
		hidden := now.Sub(model.FromUnixMilli(snap.LastActiveTimestamp))
		if offline := calculator.Accrue(snap.BaseEarningRate, hidden); offline > 0 {
			e.state.CurrentEarnings += offline
			metrics.OfflineCreditedSeconds.Add(hidden.Seconds())
			e.log.Debug("credited offline earnings", "amount", offline, "hidden", hidden)
		}
	}
	e.state.LastUpdate = model.UnixMilli(now)
	e.persist(ctx)
	e.publishLocked()
}

// offlineSnapshot returns the snapshot written by this engine's Hide. A cached
// snapshot from any other hide, or a missing one, falls back to the in-memory
// copy. The cached snapshot is consumed either way.
func (e *Engine) offlineSnapshot(ctx context.Context) model.OfflineSnapshot {
	own := model.OfflineSnapshot{LastActiveTimestamp: model.UnixMilli(e.hiddenAt), BaseEarningRate: e.hiddenRate}
	if !e.cached() {
		return own
	}

	snap, err := localstore.LoadOfflineSnapshot(ctx, e.cfg.Local, e.cfg.Wallet)
	switch {
	case err != nil:
		e.log.Warn("offline snapshot unavailable, using in-memory copy", "error", err)
	case snap.LastActiveTimestamp != own.LastActiveTimestamp:
		e.log.Warn("offline snapshot belongs to another hide, using in-memory copy",
			"cached_at", snap.LastActiveTimestamp, "hidden_at", own.LastActiveTimestamp)
	default:
		own = *snap
	}
	if err := e.cfg.Local.Delete(ctx, localstore.OfflineKey(e.cfg.Wallet)); err != nil {
		e.log.Warn("failed to clear offline snapshot", "error", err)
	}
	return own
}

// Reset overwrites the counter with a server-authoritative value.
func (e *Engine) Reset(ctx context.Context, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == Uninitialized {
		return ErrNotSeeded
	}
	e.state.CurrentEarnings = value
	e.state.LastUpdate = model.UnixMilli(e.cfg.Clock.Now())
	e.persist(ctx)
	e.publishLocked()
	return nil
}

// SetBalance applies a reconciled balance. Time before now is accrued at the old rate.
func (e *Engine) SetBalance(balance float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != Uninitialized && !e.hidden {
		e.advance(e.cfg.Clock.Now())
	}
	e.balance = balance
	e.state.IsActive = balance > 0
	if e.phase != Uninitialized {
		e.state.BaseEarningRate = e.rateAt(e.cfg.Clock.Now())
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() model.EarningState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Earnings returns the counter as of the last update.
func (e *Engine) Earnings() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.CurrentEarnings
}

// EarningsAt projects the counter to now without mutating it.
func (e *Engine) EarningsAt(now time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == Uninitialized {
		return 0
	}
	return e.state.CurrentEarnings + calculator.Accrue(e.rateAt(now), now.Sub(model.FromUnixMilli(e.state.LastUpdate)))
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) Hidden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hidden
}

func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

func (e *Engine) UserID() int64  { return e.cfg.UserID }
func (e *Engine) Wallet() string { return e.cfg.Wallet }

// Subscribe registers fn to receive every published value. The returned func unregisters it.
// fn runs with the engine locked and must not call back into the engine.
func (e *Engine) Subscribe(fn func(float64)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers, id)
	}
}

func (e *Engine) publishLocked() {
	for _, fn := range e.observers {
		fn(e.state.CurrentEarnings)
	}
}

// cached reports whether the engine uses the local store. Keys are scoped by
// wallet, so a user without one has no cache.
func (e *Engine) cached() bool {
	return e.cfg.Wallet != "" && e.cfg.Local != nil
}

// persist overwrites the cached state. The cache is best effort; failures are logged.
func (e *Engine) persist(ctx context.Context) {
	if !e.cached() {
		return
	}
	if err := localstore.SaveEarningState(ctx, e.cfg.Local, e.cfg.Wallet, e.state); err != nil {
		e.log.Error("failed to save local earnings", "error", err)
	}
}
