package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"RhizaCore/internal/accrual"
	"RhizaCore/internal/localstore"
	"RhizaCore/internal/metrics"
	"RhizaCore/internal/model"
	"RhizaCore/internal/remote"
	"RhizaCore/internal/syncer"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidLogin      = errors.New("user_id or wallet_address is required")
	ErrInvalidVisibility = errors.New("visibility must be visible or hidden")
	ErrWalletMismatch    = errors.New("wallet_address does not belong to user_id")
)

// LoginRequest identifies the user by id or by wallet address. When both are
// given the wallet must be the one stored for the user.
type LoginRequest struct {
	UserID        int64  `json:"user_id,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// Options configures a Manager.
type Options struct {
	Remote    remote.BalanceStore
	Local     localstore.Store
	Clock     clockwork.Clock
	BaseROI   float64
	Limits    syncer.Limits
	Intervals accrual.Intervals
	Logger    *slog.Logger
}

// Session is one logged-in user with its engine and timers.
type Session struct {
	ID        string
	User      model.User
	CreatedAt time.Time

	runner *accrual.Runner
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Session) Engine() *accrual.Engine { return s.runner.Engine() }

// Info is the externally visible view of a session.
type Info struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Wallet    string    `json:"wallet_address"`
	Username  string    `json:"username,omitempty"`
	Phase     string    `json:"phase"`
	Hidden    bool      `json:"hidden"`
	Balance   float64   `json:"balance"`
	Earnings  float64   `json:"earnings"`
	Rate      float64   `json:"rate_per_second"`
	CreatedAt time.Time `json:"created_at"`
}

// Info projects the session at now.
func (s *Session) Info(now time.Time) Info {
	e := s.Engine()
	st := e.Snapshot()
	return Info{
		ID:        s.ID,
		UserID:    s.User.ID,
		Wallet:    e.Wallet(),
		Username:  s.User.Username,
		Phase:     e.Phase().String(),
		Hidden:    e.Hidden(),
		Balance:   e.Balance(),
		Earnings:  e.EarningsAt(now),
		Rate:      st.BaseEarningRate,
		CreatedAt: s.CreatedAt,
	}
}

// Manager owns every active session. One session per user.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byUser   map[int64]string
	opts     Options
	log      *slog.Logger
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Limits == (syncer.Limits{}) {
		opts.Limits = syncer.DefaultLimits
	}
	if opts.Intervals == (accrual.Intervals{}) {
		opts.Intervals = accrual.DefaultIntervals
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		byUser:   make(map[int64]string),
		opts:     opts,
		log:      opts.Logger,
	}
}

// Login resolves the user, seeds an engine when the balance is positive and starts its timers.
// Logging in again returns the existing session.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	user, err := m.resolveUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.WalletAddress != "" && req.WalletAddress != user.WalletAddress {
		m.log.Warn("login wallet mismatch", "user_id", user.ID)
		return nil, ErrWalletMismatch
	}
	if s := m.byUserID(user.ID); s != nil {
		return s, nil
	}

	// The local cache is keyed by wallet, so it must be the stored one.
	engine := accrual.NewEngine(accrual.Config{
		UserID:  user.ID,
		Wallet:  user.WalletAddress,
		Balance: user.Balance,
		BaseROI: m.opts.BaseROI,
		Clock:   m.opts.Clock,
		Local:   m.opts.Local,
		Remote:  m.opts.Remote,
		Logger:  m.log,
	})
	if user.Balance > 0 {
		if err := engine.Seed(ctx); err != nil {
			return nil, fmt.Errorf("seed earnings: %w", err)
		}
	}

	s := &Session{
		ID:        uuid.NewString(),
		User:      *user,
		CreatedAt: m.opts.Clock.Now(),
		done:      make(chan struct{}),
	}
	sy := syncer.New(m.opts.Remote, m.opts.Limits, m.opts.Clock, m.log)
	s.runner = accrual.NewRunner(engine, sy, m.opts.Remote, m.opts.Clock, m.opts.Intervals, m.log)

	m.mu.Lock()
	if id, ok := m.byUser[user.ID]; ok {
		existing := m.sessions[id]
		m.mu.Unlock()
		return existing, nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	m.sessions[s.ID] = s
	m.byUser[user.ID] = s.ID
	m.mu.Unlock()

	go func() {
		defer close(s.done)
		s.runner.Run(runCtx)
	}()

	metrics.ActiveSessions.Inc()
	m.log.Info("session started", "session_id", s.ID, "user_id", user.ID, "phase", engine.Phase().String())
	return s, nil
}

func (m *Manager) resolveUser(ctx context.Context, req LoginRequest) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	switch {
	case req.UserID != 0:
		user, err = m.opts.Remote.ReadUser(ctx, req.UserID)
	case req.WalletAddress != "":
		user, err = m.opts.Remote.UserByWallet(ctx, req.WalletAddress)
	default:
		return nil, ErrInvalidLogin
	}
	if errors.Is(err, remote.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return user, nil
}

// Logout flushes the final value, stops the timers and waits for them to exit.
// The session is removed even when ctx expires before the timers stop.
func (m *Manager) Logout(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		delete(m.byUser, s.User.ID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	metrics.ActiveSessions.Dec()

	out := s.runner.Flush(ctx)
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		m.log.Warn("session timers still running after logout", "session_id", id, "err", ctx.Err())
		return ctx.Err()
	}

	m.log.Info("session ended", "session_id", id, "user_id", s.User.ID, "final_sync", out.String())
	return nil
}

// SetVisibility applies a document visibility transition.
func (m *Manager) SetVisibility(ctx context.Context, id string, v model.Visibility) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	switch v {
	case model.Hidden:
		s.Engine().Hide(ctx)
	case model.Visible:
		s.Engine().Show(ctx)
	default:
		return ErrInvalidVisibility
	}
	return nil
}

// Earnings returns the session's counter projected to the current time.
func (m *Manager) Earnings(id string) (float64, error) {
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	return s.Engine().EarningsAt(m.opts.Clock.Now()), nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) byUserID(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byUser[userID]; ok {
		return m.sessions[id]
	}
	return nil
}

// List returns every session ordered by creation time.
func (m *Manager) List() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	now := m.opts.Clock.Now()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info(now))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ReconcileAll runs balance reconciliation for every session.
func (m *Manager) ReconcileAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.runner.Reconcile(ctx); err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", s.User.ID, err))
		}
	}
	if len(errs) > 0 {
		m.log.Warn("reconciliation finished with errors", "sessions", len(sessions), "failed", len(errs))
	}
	return errors.Join(errs...)
}

// Shutdown logs out every session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.Logout(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
