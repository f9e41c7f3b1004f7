package bulkwrite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

type errorClass uint8

const (
	classOther errorClass = iota
	classTransient
	classPermission
	classSchema
	classConnection
)

func (c errorClass) String() string {
	switch c {
	case classTransient:
		return "transient"
	case classPermission:
		return "permission"
	case classSchema:
		return "schema"
	case classConnection:
		return "connection"
	}
	return "other"
}

// IsTransient reports whether err is safe to retry with a smaller batch.
func IsTransient(err error) bool {
	return classify(err) == classTransient
}

func classify(err error) errorClass {
	if err == nil {
		return classOther
	}

	var transient *domain.TransientWriteError
	var permission *domain.PermissionError
	var schema *domain.SchemaMismatchError
	switch {
	case errors.As(err, &transient):
		return classTransient
	case errors.As(err, &permission):
		return classPermission
	case errors.As(err, &schema):
		return classSchema
	case errors.Is(err, domain.ErrConnectionUnavailable):
		return classConnection
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err):
		return classTransient
	}
	return classOther
}

func fatalError(table string, offset int, class errorClass, err error) *domain.WriteError {
	werr := &domain.WriteError{Table: table, Offset: offset, Err: err}
	switch class {
	case classPermission:
		werr.Kind = domain.WriteErrorPermission
		werr.Hint = "write rejected by the access policy; grant insert and update on the table to the service role"
	case classSchema:
		werr.Kind = domain.WriteErrorSchema
		var schema *domain.SchemaMismatchError
		if errors.As(err, &schema) && schema.Column != "" {
			werr.Hint = fmt.Sprintf("remote table is missing column %q; add it with a migration or remove the field from the schema", schema.Column)
		} else {
			werr.Hint = "remote table does not match the schema"
		}
	case classTransient:
		werr.Kind = domain.WriteErrorExhausted
		werr.Hint = "transient failures persisted at batch size 1"
	case classConnection:
		werr.Kind = domain.WriteErrorConnection
		werr.Hint = "no database connection; check the database configuration"
	default:
		werr.Kind = domain.WriteErrorOther
		werr.Hint = err.Error()
	}
	return werr
}
