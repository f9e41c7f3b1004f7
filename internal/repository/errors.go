package repository

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

var missingColumnPattern = regexp.MustCompile(`column "([^"]+)"`)

// translateError maps driver failures of a write to table onto the domain
// error types the bulk writer classifies.
func translateError(table string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501":
			return &domain.PermissionError{Table: table, Err: err}
		case pgErr.Code == "42703":
			column := pgErr.ColumnName
			if column == "" {
				if m := missingColumnPattern.FindStringSubmatch(pgErr.Message); m != nil {
					column = m[1]
				}
			}
			return &domain.SchemaMismatchError{Table: table, Column: column, Err: err}
		case pgErr.Code == "42P01":
			return &domain.SchemaMismatchError{Table: table, Err: err}
		case pgErr.Code == "54000":
			return &domain.TransientWriteError{Reason: domain.ReasonPayloadTooLarge, Err: err}
		case pgErr.Code == "57014":
			return &domain.TransientWriteError{Reason: domain.ReasonTimeout, Err: err}
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57P0"):
			return &domain.TransientWriteError{Reason: domain.ReasonNetwork, Err: err}
		}
		return fmt.Errorf("write to %s failed: %w", table, err)
	}

	if errors.Is(err, domain.ErrConnectionUnavailable) {
		return err
	}

	var netErr net.Error
	switch {
	case strings.Contains(err.Error(), "limited to 65535 parameters"):
		return &domain.TransientWriteError{Reason: domain.ReasonPayloadTooLarge, Err: err}
	case pgconn.Timeout(err):
		return &domain.TransientWriteError{Reason: domain.ReasonTimeout, Err: err}
	case errors.As(err, &netErr), pgconn.SafeToRetry(err):
		return &domain.TransientWriteError{Reason: domain.ReasonNetwork, Err: err}
	}
	return fmt.Errorf("write to %s failed: %w", table, err)
}
