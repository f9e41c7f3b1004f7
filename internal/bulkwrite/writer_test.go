package bulkwrite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attempt struct {
	first string
	size  int
}

// keyedStore upserts rows by conflict key, like the database does.
type keyedStore struct {
	mu       sync.Mutex
	rows     map[string]domain.CanonicalRow
	attempts []attempt
	fail     func(call int, rows []domain.CanonicalRow) error
}

func newKeyedStore() *keyedStore {
	return &keyedStore{rows: map[string]domain.CanonicalRow{}}
}

func (s *keyedStore) Upsert(ctx context.Context, table string, conflictKey []string, rows []domain.CanonicalRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.attempts)
	s.attempts = append(s.attempts, attempt{first: rows[0]["sku_code"].Text(), size: len(rows)})
	if s.fail != nil {
		if err := s.fail(call, rows); err != nil {
			return err
		}
	}
	for _, row := range rows {
		parts := make([]string, 0, len(conflictKey))
		for _, k := range conflictKey {
			parts = append(parts, row[k].Text())
		}
		s.rows[strings.Join(parts, "|")] = row.Clone()
	}
	return nil
}

func skuRows(n int) []domain.CanonicalRow {
	rows := make([]domain.CanonicalRow, n)
	for i := range rows {
		rows[i] = domain.CanonicalRow{
			"date":       domain.DateValue("2026-03-01"),
			"sku_code":   domain.StringValue(fmt.Sprintf("SKU-%04d", i)),
			"paid_items": domain.NumberValue(float64(i)),
		}
	}
	return rows
}

func newTestWriter(store Upserter, opts Options) (*Writer, *[]time.Duration) {
	w := NewWriter(store, opts, nil)
	var slept []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	w.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }
	return w, &slept
}

type progressLog [][2]int

func (p *progressLog) record(done, total int) { *p = append(*p, [2]int{done, total}) }

func TestWriteReportsProgressAndGrowsBatches(t *testing.T) {
	store := newKeyedStore()
	w, slept := newTestWriter(store, DefaultOptions())

	var progress progressLog
	require.NoError(t, w.Write(context.Background(), domain.FactShangzhi, skuRows(100), progress.record))

	assert.Equal(t, progressLog{{0, 100}, {20, 100}, {42, 100}, {67, 100}, {95, 100}, {100, 100}}, progress)

	sizes := make([]int, len(store.attempts))
	for i, a := range store.attempts {
		sizes[i] = a.size
	}
	assert.Equal(t, []int{20, 22, 25, 28, 5}, sizes)
	assert.Len(t, store.rows, 100)
	// no throttle after the last slice
	assert.Len(t, *slept, 4)
}

func TestWriteBatchSizeNeverExceedsMaximum(t *testing.T) {
	store := newKeyedStore()
	w, _ := newTestWriter(store, Options{InitialBatchSize: 90, MaxBatchSize: 100, GrowthFactor: 1.5})

	require.NoError(t, w.Write(context.Background(), domain.FactShangzhi, skuRows(1000), nil))
	for _, a := range store.attempts {
		assert.LessOrEqual(t, a.size, 100)
	}
	assert.Len(t, store.rows, 1000)
}

func TestWriteShrinksOnPayloadTooLarge(t *testing.T) {
	store := newKeyedStore()
	store.fail = func(call int, rows []domain.CanonicalRow) error {
		if call == 1 {
			return &domain.TransientWriteError{Reason: domain.ReasonPayloadTooLarge}
		}
		return nil
	}
	opts := DefaultOptions()
	opts.InitialBatchSize = 100
	w, slept := newTestWriter(store, opts)

	var progress progressLog
	require.NoError(t, w.Write(context.Background(), domain.FactShangzhi, skuRows(250), progress.record))

	require.GreaterOrEqual(t, len(store.attempts), 3)
	assert.Equal(t, attempt{first: "SKU-0000", size: 100}, store.attempts[0])
	assert.Equal(t, attempt{first: "SKU-0100", size: 100}, store.attempts[1])
	assert.Equal(t, attempt{first: "SKU-0100", size: 50}, store.attempts[2])
	assert.Contains(t, *slept, opts.Cooldown)
	assert.Equal(t, [2]int{250, 250}, progress[len(progress)-1])
	assert.Len(t, store.rows, 250)
}

func TestWriteAbortsWhenSizeOneStillFails(t *testing.T) {
	store := newKeyedStore()
	store.fail = func(call int, rows []domain.CanonicalRow) error {
		for _, row := range rows {
			if row["sku_code"].Text() == "SKU-0003" {
				return &domain.TransientWriteError{Reason: domain.ReasonTimeout}
			}
		}
		return nil
	}
	w, _ := newTestWriter(store, Options{InitialBatchSize: 8, MaxBatchSize: 8, GrowthFactor: 1.1})

	err := w.Write(context.Background(), domain.FactShangzhi, skuRows(10), nil)
	var werr *domain.WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, domain.WriteErrorExhausted, werr.Kind)
	assert.Equal(t, 3, werr.Offset)
	assert.Len(t, store.rows, 3)

	last := store.attempts[len(store.attempts)-1]
	assert.Equal(t, attempt{first: "SKU-0003", size: 1}, last)
}

func TestWritePermissionErrorIsNotRetried(t *testing.T) {
	store := newKeyedStore()
	store.fail = func(call int, rows []domain.CanonicalRow) error {
		return &domain.PermissionError{Table: domain.FactShangzhi, Err: errors.New("row-level security")}
	}
	w, slept := newTestWriter(store, DefaultOptions())

	err := w.Write(context.Background(), domain.FactShangzhi, skuRows(40), nil)
	var werr *domain.WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, domain.WriteErrorPermission, werr.Kind)
	assert.Equal(t, 0, werr.Offset)
	assert.Len(t, store.attempts, 1)
	assert.Empty(t, *slept)
}

func TestWriteSchemaMismatchNamesColumn(t *testing.T) {
	store := newKeyedStore()
	store.fail = func(call int, rows []domain.CanonicalRow) error {
		return &domain.SchemaMismatchError{Table: domain.FactShangzhi, Column: "coupon_amount", Err: errors.New("42703")}
	}
	w, _ := newTestWriter(store, DefaultOptions())

	err := w.Write(context.Background(), domain.FactShangzhi, skuRows(5), nil)
	var werr *domain.WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, domain.WriteErrorSchema, werr.Kind)
	assert.Contains(t, werr.Hint, "coupon_amount")
}

func TestWriteIsIdempotent(t *testing.T) {
	store := newKeyedStore()
	w, _ := newTestWriter(store, DefaultOptions())
	rows := skuRows(57)

	require.NoError(t, w.Write(context.Background(), domain.FactShangzhi, rows, nil))
	first := len(store.rows)
	require.NoError(t, w.Write(context.Background(), domain.FactShangzhi, rows, nil))
	assert.Equal(t, first, len(store.rows))
	assert.Equal(t, 57, len(store.rows))
}

func TestWriteCursorIsMonotonic(t *testing.T) {
	store := newKeyedStore()
	store.fail = func(call int, rows []domain.CanonicalRow) error {
		if call%3 == 1 && len(rows) > 1 {
			return &domain.TransientWriteError{Reason: domain.ReasonNetwork}
		}
		return nil
	}
	w, _ := newTestWriter(store, DefaultOptions())

	var progress progressLog
	require.NoError(t, w.Write(context.Background(), domain.FactShangzhi, skuRows(300), progress.record))
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i][0], progress[i-1][0])
	}
	assert.Len(t, store.rows, 300)
}

func TestWriteStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newKeyedStore()
	store.fail = func(call int, rows []domain.CanonicalRow) error {
		if call == 1 {
			cancel()
		}
		return nil
	}
	w, _ := newTestWriter(store, DefaultOptions())

	err := w.Write(ctx, domain.FactShangzhi, skuRows(200), nil)
	require.ErrorIs(t, err, context.Canceled)
	// the in-flight slice completes, nothing after it is scheduled
	assert.Len(t, store.attempts, 2)
	assert.Len(t, store.rows, 42)
}

func TestWriteWithoutStore(t *testing.T) {
	w := NewWriter(nil, DefaultOptions(), nil)
	err := w.Write(context.Background(), domain.FactShangzhi, skuRows(1), nil)
	require.ErrorIs(t, err, domain.ErrConnectionUnavailable)
}

func TestWriteEmptyInput(t *testing.T) {
	store := newKeyedStore()
	w, _ := newTestWriter(store, DefaultOptions())
	var progress progressLog
	require.NoError(t, w.Write(context.Background(), domain.FactShangzhi, nil, progress.record))
	assert.Equal(t, progressLog{{0, 0}}, progress)
	assert.Empty(t, store.attempts)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, classTransient, classify(&domain.TransientWriteError{Reason: domain.ReasonNetwork}))
	assert.Equal(t, classTransient, classify(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, classConnection, classify(domain.ErrConnectionUnavailable))
	assert.Equal(t, classOther, classify(errors.New("boom")))
	assert.True(t, IsTransient(&domain.TransientWriteError{Reason: domain.ReasonTimeout}))
}
