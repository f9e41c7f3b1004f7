package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExtraction is the root of every tabular extraction failure.
	ErrExtraction = errors.New("extraction failed")
	// ErrNoSheet is returned when a workbook contains no sheets.
	ErrNoSheet = fmt.Errorf("%w: workbook has no sheets", ErrExtraction)
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported file format", ErrExtraction)
	// ErrNoValidData is returned when every row failed required-field validation.
	ErrNoValidData = errors.New("no valid rows")
	// ErrConnectionUnavailable is returned when no store client could be constructed.
	ErrConnectionUnavailable = errors.New("database connection unavailable")
	// ErrUnknownTable is returned for table names outside the allow-list.
	ErrUnknownTable = errors.New("unknown table")
)

// MissingWorksheetError reports a named sheet that is absent from the workbook.
type MissingWorksheetError struct {
	Sheet string
}

func (e *MissingWorksheetError) Error() string {
	return fmt.Sprintf("worksheet %q not found", e.Sheet)
}

func (e *MissingWorksheetError) Unwrap() error { return ErrExtraction }

// FieldCount pairs a field label with the number of rows missing it.
type FieldCount struct {
	Field string `json:"field"`
	Count int    `json:"count"`
}

// NoValidDataError carries the most commonly missing required fields.
type NoValidDataError struct {
	Rows    int
	Missing []FieldCount
}

func (e *NoValidDataError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%v: none of %d rows could be mapped", ErrNoValidData, e.Rows)
	}
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (%d)", m.Field, m.Count))
	}
	return fmt.Sprintf("%v: all %d rows are missing required fields: %s", ErrNoValidData, e.Rows, strings.Join(parts, ", "))
}

func (e *NoValidDataError) Unwrap() error { return ErrNoValidData }

// TransientReason names the cause of a retryable write failure.
type TransientReason string

const (
	ReasonNetwork         TransientReason = "network"
	ReasonPayloadTooLarge TransientReason = "payload_too_large"
	ReasonTimeout         TransientReason = "timeout"
)

// TransientWriteError is a write failure that is safe to retry with a smaller batch.
type TransientWriteError struct {
	Reason TransientReason
	Err    error
}

func (e *TransientWriteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transient write failure (%s)", e.Reason)
	}
	return fmt.Sprintf("transient write failure (%s): %v", e.Reason, e.Err)
}

func (e *TransientWriteError) Unwrap() error { return e.Err }

// PermissionError reports a write rejected by the store's access policy.
type PermissionError struct {
	Table string
	Err   error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied writing %s: %v", e.Table, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// SchemaMismatchError reports a column the remote table does not have.
type SchemaMismatchError struct {
	Table  string
	Column string
	Err    error
}

func (e *SchemaMismatchError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("table %s has no column %q: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("table %s does not match the row shape: %v", e.Table, e.Err)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// WriteErrorKind classifies a fatal bulk write abort.
type WriteErrorKind string

const (
	WriteErrorPermission WriteErrorKind = "permission"
	WriteErrorSchema     WriteErrorKind = "schema_mismatch"
	WriteErrorExhausted  WriteErrorKind = "retries_exhausted"
	WriteErrorConnection WriteErrorKind = "connection_unavailable"
	WriteErrorOther      WriteErrorKind = "other"
)

// WriteError is the fatal outcome of a bulk write. Rows before Offset are committed.
type WriteError struct {
	Table  string
	Offset int
	Kind   WriteErrorKind
	Hint   string
	Err    error
}

func (e *WriteError) Error() string {
	msg := fmt.Sprintf("write to %s aborted at row %d: %s", e.Table, e.Offset, e.Hint)
	if e.Err != nil && e.Hint != e.Err.Error() {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WriteError) Unwrap() error { return e.Err }
