package repository

import (
	"context"
	"time"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolProvider hands out the shared pool. db.Manager implements it.
type PoolProvider interface {
	Pool(ctx context.Context) (*pgxpool.Pool, error)
}

// FactRepository defines the operations on fact and dimension tables.
type FactRepository interface {
	Upsert(ctx context.Context, table string, conflictKey []string, rows []domain.CanonicalRow) error
	Stats(ctx context.Context, table string) (domain.TableStats, error)
	ListByDateRange(ctx context.Context, table string, from, to time.Time) ([]domain.CanonicalRow, error)
	ListPage(ctx context.Context, table string, limit, offset int) ([]domain.CanonicalRow, int64, error)
	DeleteByIDs(ctx context.Context, table string, ids []int64) (int64, error)
	DeleteAll(ctx context.Context, table string) (int64, error)
}

// IngestionLogRepository persists row-level import problems.
type IngestionLogRepository interface {
	Record(ctx context.Context, entry domain.IngestionLogEntry) error
	RecordMany(ctx context.Context, entries []domain.IngestionLogEntry) error
	List(ctx context.Context, tableName string, fileName string, limit int, offset int) ([]domain.IngestionLogEntry, error)
}

// SettingsRepository stores opaque JSON documents by key.
type SettingsRepository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}
