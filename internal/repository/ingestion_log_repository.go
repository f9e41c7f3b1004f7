package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type ingestionLogRepository struct {
	pools PoolProvider
}

// NewIngestionLogRepository wires a repository backed by pgxpool.
func NewIngestionLogRepository(pools PoolProvider) IngestionLogRepository {
	return &ingestionLogRepository{pools: pools}
}

func (r *ingestionLogRepository) Record(ctx context.Context, entry domain.IngestionLogEntry) error {
	return r.RecordMany(ctx, []domain.IngestionLogEntry{entry})
}

// RecordMany copies entries in one round trip.
func (r *ingestionLogRepository) RecordMany(ctx context.Context, entries []domain.IngestionLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if r.pools == nil {
		return fmt.Errorf("ingestion log repository not initialized")
	}
	pool, err := r.pools.Pool(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	source := pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
		entry := entries[i]
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		var rowNumber any
		if entry.RowNumber != nil {
			rowNumber = int32(*entry.RowNumber)
		}
		return []any{entry.ID, entry.TableName, entry.FileName, rowNumber, entry.ErrorMessage, entry.CreatedAt}, nil
	})

	_, err = pool.CopyFrom(
		ctx,
		pgx.Identifier{"ingestion_logs"},
		[]string{"id", "table_name", "file_name", "row_number", "error_message", "created_at"},
		source,
	)
	if err != nil {
		return fmt.Errorf("failed to record ingestion log: %w", err)
	}
	return nil
}

func (r *ingestionLogRepository) List(ctx context.Context, tableName string, fileName string, limit int, offset int) ([]domain.IngestionLogEntry, error) {
	if r.pools == nil {
		return nil, fmt.Errorf("ingestion log repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	pool, err := r.pools.Pool(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionUnavailable) {
			return []domain.IngestionLogEntry{}, nil
		}
		return nil, err
	}

	rows, err := pool.Query(
		ctx,
		`SELECT id, table_name, file_name, row_number, error_message, created_at
		 FROM ingestion_logs
		 WHERE table_name = $1
		   AND ($2 = '' OR file_name = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		tableName,
		fileName,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.IngestionLogEntry{}
	for rows.Next() {
		var (
			entry     domain.IngestionLogEntry
			rowNumber pgtype.Int4
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.TableName,
			&entry.FileName,
			&rowNumber,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", scanErr)
		}

		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate ingestion logs: %w", rowsErr)
	}

	return logs, nil
}
