package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// maxQueryParams is the extended protocol's bind parameter limit.
const maxQueryParams = 65535

var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// tableOrder lists the writable tables with the column each one pages by.
var tableOrder = map[string]string{
	domain.FactShangzhi:        "id",
	domain.FactJingzhuntong:    "id",
	domain.FactCustomerService: "id",
	domain.DimSKUs:             "sku_code",
	domain.DimShops:            "shop_id",
}

type factRepository struct {
	pools  PoolProvider
	logger *slog.Logger
}

// NewFactRepository wires a repository backed by the shared pgx pool.
func NewFactRepository(pools PoolProvider, logger *slog.Logger) FactRepository {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &factRepository{pools: pools, logger: logger}
}

func checkTable(table string) error {
	if _, ok := tableOrder[table]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownTable, table)
	}
	return nil
}

func (r *factRepository) Upsert(ctx context.Context, table string, conflictKey []string, rows []domain.CanonicalRow) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := buildUpsert(table, conflictKey, rows)
	if err != nil {
		return err
	}

	pool, err := r.pools.Pool(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, query, args...); err != nil {
		return translateError(table, err)
	}
	return nil
}

// buildUpsert renders one multi-row INSERT. Rows sharing a conflict key are
// collapsed (last one wins) since Postgres rejects a second update of the same
// row within a single statement.
func buildUpsert(table string, conflictKey []string, rows []domain.CanonicalRow) (string, []any, error) {
	if err := checkTable(table); err != nil {
		return "", nil, err
	}
	rows = dedupeRows(conflictKey, rows)

	columnSet := map[string]struct{}{}
	for _, row := range rows {
		for key := range row {
			columnSet[key] = struct{}{}
		}
	}
	for _, key := range conflictKey {
		columnSet[key] = struct{}{}
	}
	columns := make([]string, 0, len(columnSet))
	for key := range columnSet {
		if !columnPattern.MatchString(key) {
			return "", nil, &domain.SchemaMismatchError{Table: table, Column: key, Err: errors.New("invalid column name")}
		}
		columns = append(columns, key)
	}
	sort.Strings(columns)

	if len(rows)*len(columns) > maxQueryParams {
		return "", nil, &domain.TransientWriteError{
			Reason: domain.ReasonPayloadTooLarge,
			Err:    fmt.Errorf("%d rows x %d columns exceeds %d parameters", len(rows), len(columns), maxQueryParams),
		}
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{table}.Sanitize())
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, c := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			value, ok := row[c]
			if !ok {
				sb.WriteString("DEFAULT")
				continue
			}
			args = append(args, value.SQLArg())
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteByte(')')
	}

	if len(conflictKey) > 0 {
		keyQuoted := make([]string, len(conflictKey))
		isKey := map[string]bool{}
		for i, k := range conflictKey {
			keyQuoted[i] = pgx.Identifier{k}.Sanitize()
			isKey[k] = true
		}
		var updates []string
		for i, c := range columns {
			if isKey[c] {
				continue
			}
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
		sb.WriteString(" ON CONFLICT (")
		sb.WriteString(strings.Join(keyQuoted, ", "))
		if len(updates) == 0 {
			sb.WriteString(") DO NOTHING")
		} else {
			sb.WriteString(") DO UPDATE SET ")
			sb.WriteString(strings.Join(updates, ", "))
		}
	}

	return sb.String(), args, nil
}

func dedupeRows(conflictKey []string, rows []domain.CanonicalRow) []domain.CanonicalRow {
	if len(conflictKey) == 0 {
		return rows
	}
	position := make(map[string]int, len(rows))
	out := make([]domain.CanonicalRow, 0, len(rows))
	for _, row := range rows {
		parts := make([]string, len(conflictKey))
		for i, k := range conflictKey {
			parts[i] = conflictKeyPart(row[k])
		}
		id := strings.Join(parts, "\x1f")
		if idx, seen := position[id]; seen {
			out[idx] = row
			continue
		}
		position[id] = len(out)
		out = append(out, row)
	}
	return out
}

// conflictKeyPart renders v the way the store compares it, so that spellings
// of one date collapse into one key.
func conflictKeyPart(v domain.Value) string {
	if t, ok := v.SQLArg().(time.Time); ok {
		if v.Kind == domain.KindDate {
			return t.Format(domain.DateLayout)
		}
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v.Text()
}

func (r *factRepository) Stats(ctx context.Context, table string) (domain.TableStats, error) {
	stats := domain.TableStats{Table: table}
	if err := checkTable(table); err != nil {
		return stats, err
	}
	pool, err := r.pools.Pool(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionUnavailable) {
			return stats, nil
		}
		return stats, err
	}

	ident := pgx.Identifier{table}.Sanitize()
	if !domain.IsFactTable(table) {
		err = pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+ident).Scan(&stats.RowCount)
		if err != nil {
			return stats, fmt.Errorf("failed to count %s: %w", table, err)
		}
		return stats, nil
	}

	var latest pgtype.Date
	err = pool.QueryRow(ctx, "SELECT COUNT(*), MAX(date) FROM "+ident).Scan(&stats.RowCount, &latest)
	if err != nil {
		return stats, fmt.Errorf("failed to read stats for %s: %w", table, err)
	}
	if latest.Valid {
		t := latest.Time.UTC()
		stats.LatestDate = &t
	}
	return stats, nil
}

func (r *factRepository) ListByDateRange(ctx context.Context, table string, from, to time.Time) ([]domain.CanonicalRow, error) {
	if !domain.IsFactTable(table) {
		return nil, fmt.Errorf("%w: %q has no date column", domain.ErrUnknownTable, table)
	}
	pool, err := r.pools.Pool(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionUnavailable) {
			return []domain.CanonicalRow{}, nil
		}
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE date BETWEEN $1 AND $2 ORDER BY date DESC, id DESC",
		pgx.Identifier{table}.Sanitize(),
	)
	rows, err := pool.Query(ctx, query, dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s by date: %w", table, err)
	}
	return collectRows(rows)
}

func (r *factRepository) ListPage(ctx context.Context, table string, limit, offset int) ([]domain.CanonicalRow, int64, error) {
	if err := checkTable(table); err != nil {
		return nil, 0, err
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
			return []domain.CanonicalRow{}, 0, nil
		}
		return nil, 0, err
	}

	ident := pgx.Identifier{table}.Sanitize()
	var total int64
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+ident).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count %s: %w", table, err)
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT $1 OFFSET $2", ident, pgx.Identifier{tableOrder[table]}.Sanitize())
	rows, err := pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s: %w", table, err)
	}
	out, err := collectRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *factRepository) DeleteByIDs(ctx context.Context, table string, ids []int64) (int64, error) {
	if !domain.IsFactTable(table) {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownTable, table)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pool, err := r.pools.Pool(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", pgx.Identifier{table}.Sanitize()), ids)
	if err != nil {
		return 0, translateError(table, err)
	}
	r.logger.Info("rows deleted", "table", table, "requested", len(ids), "deleted", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func (r *factRepository) DeleteAll(ctx context.Context, table string) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	pool, err := r.pools.Pool(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize())
	if err != nil {
		return 0, translateError(table, err)
	}
	r.logger.Warn("table cleared", "table", table, "deleted", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func collectRows(rows pgx.Rows) ([]domain.CanonicalRow, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := []domain.CanonicalRow{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(domain.CanonicalRow, len(values))
		for i, v := range values {
			row[fields[i].Name] = valueFromPG(fields[i], v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

// valueFromPG converts a decoded column value back into a canonical value.
func valueFromPG(field pgconn.FieldDescription, v any) domain.Value {
	switch typed := v.(type) {
	case nil:
		return domain.NullValue()
	case string:
		return domain.StringValue(typed)
	case int64:
		return domain.NumberValue(float64(typed))
	case int32:
		return domain.NumberValue(float64(typed))
	case int16:
		return domain.NumberValue(float64(typed))
	case float64:
		return domain.NumberValue(typed)
	case float32:
		return domain.NumberValue(float64(typed))
	case pgtype.Numeric:
		f, err := typed.Float64Value()
		if err != nil || !f.Valid || math.IsNaN(f.Float64) {
			return domain.NullValue()
		}
		return domain.NumberValue(f.Float64)
	case time.Time:
		if field.DataTypeOID == pgtype.DateOID {
			return domain.DateValue(typed.Format(domain.DateLayout))
		}
		return domain.TimestampValue(typed.UTC().Format(domain.TimestampLayout))
	case []byte:
		return domain.StringValue(string(typed))
	case fmt.Stringer:
		return domain.StringValue(typed.String())
	}
	return domain.StringValue(fmt.Sprint(v))
}
