package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"RhizaCore/internal/model"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("localstore: key not found")

const (
	earningsKeyPrefix = "userEarnings_"
	offlineKeyPrefix  = "offline_earnings_state_"
)

// Store is durable key/value storage that survives restarts.
// It is a cache: the remote balance store is the source of truth.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// EarningsKey scopes the cached EarningState to a wallet address.
func EarningsKey(wallet string) string { return earningsKeyPrefix + wallet }

// OfflineKey scopes the OfflineSnapshot to a wallet address.
func OfflineKey(wallet string) string { return offlineKeyPrefix + wallet }

// LoadEarningState returns the cached state for wallet, or ErrNotFound.
func LoadEarningState(ctx context.Context, s Store, wallet string) (*model.EarningState, error) {
	var st model.EarningState
	if err := getJSON(ctx, s, EarningsKey(wallet), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveEarningState overwrites the cached state for wallet.
func SaveEarningState(ctx context.Context, s Store, wallet string, st model.EarningState) error {
	return putJSON(ctx, s, EarningsKey(wallet), st)
}

// LoadOfflineSnapshot returns the last snapshot written on hide, or ErrNotFound.
func LoadOfflineSnapshot(ctx context.Context, s Store, wallet string) (*model.OfflineSnapshot, error) {
	var snap model.OfflineSnapshot
	if err := getJSON(ctx, s, OfflineKey(wallet), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveOfflineSnapshot overwrites the snapshot for wallet.
func SaveOfflineSnapshot(ctx context.Context, s Store, wallet string, snap model.OfflineSnapshot) error {
	return putJSON(ctx, s, OfflineKey(wallet), snap)
}

func getJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func putJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}
