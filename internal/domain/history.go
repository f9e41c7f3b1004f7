package domain

import (
	"time"

	"github.com/google/uuid"
)

// Upload statuses.
const (
	UploadStatusSuccess = "success"
	UploadStatusFailed  = "failed"
)

// UploadHistoryRecord is an append-only log entry for one import attempt.
type UploadHistoryRecord struct {
	ID           uuid.UUID `json:"id"`
	FileName     string    `json:"fileName"`
	FileSize     int64     `json:"fileSize"`
	RowCount     int       `json:"rowCount"`
	SkippedCount int       `json:"skippedCount"`
	UploadTime   time.Time `json:"uploadTime"`
	Status       string    `json:"status"`
	TargetTable  TableType `json:"targetTable"`
	Error        string    `json:"error,omitempty"`
}

// TableStats summarises one persisted table for display.
type TableStats struct {
	Table      string     `json:"table"`
	RowCount   int64      `json:"rowCount"`
	LatestDate *time.Time `json:"latestDate,omitempty"`
}
