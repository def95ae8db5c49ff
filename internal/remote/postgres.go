package remote

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver with database/sql for goose
	"github.com/pressly/goose/v3"

	"RhizaCore/internal/model"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PostgresStore is the BalanceStore backed by the users and user_earnings tables.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresStore connects to connStr and optionally applies the embedded migrations.
func NewPostgresStore(ctx context.Context, connStr string, runMigrations bool, log *slog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info("connected to postgres", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)

	if runMigrations {
		if err := migrateUp(connStr, log); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

func migrateUp(connStr string, log *slog.Logger) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	log.Info("running postgres migrations")
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadEarnings(ctx context.Context, userID int64) (*model.ServerEarnings, error) {
	e := model.ServerEarnings{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT current_earnings, last_update, start_date FROM user_earnings WHERE user_id = $1`, userID,
	).Scan(&e.CurrentEarnings, &e.LastUpdate, &e.StartDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read earnings for user %d: %w", userID, err)
	}
	return &e, nil
}

func (s *PostgresStore) InitEarnings(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_earnings (user_id, current_earnings, last_update, start_date)
		 VALUES ($1, 0, $2, $2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, now)
	if err != nil {
		return fmt.Errorf("init earnings for user %d: %w", userID, err)
	}
	return nil
}

// WriteEarnings runs the upsert and the users mirror in one transaction.
func (s *PostgresStore) WriteEarnings(ctx context.Context, userID int64, earnings float64, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_earnings (user_id, current_earnings, last_update, start_date)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET current_earnings = EXCLUDED.current_earnings, last_update = EXCLUDED.last_update`,
		userID, earnings, now); err != nil {
		return fmt.Errorf("upsert earnings for user %d: %w", userID, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET total_earned = $2, last_sync = $3 WHERE id = $1`,
		userID, earnings, now); err != nil {
		return fmt.Errorf("mirror total_earned for user %d: %w", userID, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ReadTotalEarned(ctx context.Context, userID int64) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `SELECT total_earned FROM users WHERE id = $1`, userID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read total_earned for user %d: %w", userID, err)
	}
	return total, nil
}

const userColumns = `id, COALESCE(telegram_id, 0), wallet_address, username, balance, total_earned, is_active, created_at`

func (s *PostgresStore) ReadUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

func (s *PostgresStore) UserByWallet(ctx context.Context, wallet string) (*model.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE wallet_address = $1 ORDER BY id LIMIT 1`, wallet)
}

func (s *PostgresStore) ListActiveUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE balance > 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.WalletAddress, &u.Username, &u.Balance, &u.TotalEarned, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) ReconcileBalance(ctx context.Context, userID int64, now time.Time) (*model.BalanceCheck, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	check := model.BalanceCheck{UserID: userID}
	err = tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&check.Recorded)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read balance for user %d: %w", userID, err)
	}

	err = tx.QueryRow(ctx, `SELECT
		COALESCE((SELECT SUM(amount) FROM deposits WHERE user_id = $1 AND status = 'completed'), 0) -
		COALESCE((SELECT SUM(amount) FROM withdrawals WHERE user_id = $1 AND status = 'completed'), 0)`,
		userID).Scan(&check.Calculated)
	if err != nil {
		return nil, fmt.Errorf("sum ledger for user %d: %w", userID, err)
	}

	if math.Abs(check.Recorded-check.Calculated) > balanceTolerance {
		if _, err := tx.Exec(ctx,
			`INSERT INTO balance_discrepancies (user_id, recorded_balance, calculated_balance, difference, timestamp)
			 VALUES ($1, $2, $3, $4, $5)`,
			userID, check.Recorded, check.Calculated, check.Calculated-check.Recorded, now); err != nil {
			return nil, fmt.Errorf("record discrepancy for user %d: %w", userID, err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET balance = $2, last_balance_check = $3 WHERE id = $1`,
			userID, check.Calculated, now); err != nil {
			return nil, fmt.Errorf("correct balance for user %d: %w", userID, err)
		}
		check.Corrected = true
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &check, nil
}

func (s *PostgresStore) queryUser(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.TelegramID, &u.WalletAddress, &u.Username, &u.Balance, &u.TotalEarned, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
