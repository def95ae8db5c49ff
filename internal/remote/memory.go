package remote

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"RhizaCore/internal/model"
)

// MemoryStore is an in-process BalanceStore for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[int64]model.User
	earnings map[int64]model.ServerEarnings

	// Fail, when set, is consulted before every operation; a non-nil result is returned as-is.
	Fail func(op string) error

	deposits      map[int64][]float64
	withdrawals   map[int64][]float64
	discrepancies []model.BalanceCheck

	writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]model.User),
		earnings:    make(map[int64]model.ServerEarnings),
		deposits:    make(map[int64][]float64),
		withdrawals: make(map[int64][]float64),
	}
}

// PutUser inserts or replaces a users row.
func (m *MemoryStore) PutUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// PutEarnings inserts or replaces a user_earnings row.
func (m *MemoryStore) PutEarnings(e model.ServerEarnings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earnings[e.UserID] = e
}

// AddDeposit records a completed deposit.
func (m *MemoryStore) AddDeposit(userID int64, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits[userID] = append(m.deposits[userID], amount)
}

// AddWithdrawal records a completed withdrawal.
func (m *MemoryStore) AddWithdrawal(userID int64, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.withdrawals[userID] = append(m.withdrawals[userID], amount)
}

// Discrepancies returns every balance correction made so far.
func (m *MemoryStore) Discrepancies() []model.BalanceCheck {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.BalanceCheck(nil), m.discrepancies...)
}

// Writes reports how many WriteEarnings calls succeeded.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Users returns a copy of every users row.
func (m *MemoryStore) Users() []model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out
}

func (m *MemoryStore) fail(op string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op)
}

func (m *MemoryStore) ReadEarnings(_ context.Context, userID int64) (*model.ServerEarnings, error) {
	if err := m.fail("ReadEarnings"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.earnings[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryStore) InitEarnings(_ context.Context, userID int64, now time.Time) error {
	if err := m.fail("InitEarnings"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.earnings[userID]; ok {
		return nil
	}
	m.earnings[userID] = model.ServerEarnings{UserID: userID, LastUpdate: now, StartDate: now}
	return nil
}

func (m *MemoryStore) WriteEarnings(_ context.Context, userID int64, earnings float64, now time.Time) error {
	if err := m.fail("WriteEarnings"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.earnings[userID]
	if !ok {
		e = model.ServerEarnings{UserID: userID, StartDate: now}
	}
	e.CurrentEarnings = earnings
	e.LastUpdate = now
	m.earnings[userID] = e
	if u, ok := m.users[userID]; ok {
		u.TotalEarned = earnings
		m.users[userID] = u
	}
	m.writes++
	return nil
}

func (m *MemoryStore) ReadTotalEarned(_ context.Context, userID int64) (float64, error) {
	if err := m.fail("ReadTotalEarned"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return u.TotalEarned, nil
}

func (m *MemoryStore) ReadUser(_ context.Context, userID int64) (*model.User, error) {
	if err := m.fail("ReadUser"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) UserByWallet(_ context.Context, wallet string) (*model.User, error) {
	if err := m.fail("UserByWallet"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.User
	for _, u := range m.users {
		if u.WalletAddress == wallet && (found == nil || u.ID < found.ID) {
			u := u
			found = &u
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStore) ListActiveUsers(_ context.Context) ([]model.User, error) {
	if err := m.fail("ListActiveUsers"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.users {
		if u.Balance > 0 {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ReconcileBalance(_ context.Context, userID int64, _ time.Time) (*model.BalanceCheck, error) {
	if err := m.fail("ReconcileBalance"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	check := model.BalanceCheck{UserID: userID, Recorded: u.Balance}
	for _, d := range m.deposits[userID] {
		check.Calculated += d
	}
	for _, w := range m.withdrawals[userID] {
		check.Calculated -= w
	}
	if math.Abs(check.Recorded-check.Calculated) > balanceTolerance {
		check.Corrected = true
		u.Balance = check.Calculated
		m.users[userID] = u
		m.discrepancies = append(m.discrepancies, check)
	}
	return &check, nil
}

func (m *MemoryStore) Close() {}
