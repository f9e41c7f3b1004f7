package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/jackc/pgx/v5"
)

type settingsRepository struct {
	pools PoolProvider
}

// NewSettingsRepository stores settings in the app_settings table.
func NewSettingsRepository(pools PoolProvider) SettingsRepository {
	return &settingsRepository{pools: pools}
}

// Get returns the stored document. A missing key and an unreachable database
// both read as absent.
func (r *settingsRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pool, err := r.pools.Pool(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionUnavailable) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var value string
	err = pool.QueryRow(ctx, `SELECT value::text FROM app_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return []byte(value), true, nil
}

func (r *settingsRepository) Set(ctx context.Context, key string, value []byte) error {
	pool, err := r.pools.Pool(ctx)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO app_settings (key, value, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, string(value))
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}
