// Package bulkwrite performs idempotent, adaptively batched upserts.
package bulkwrite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpattn/opsdash/internal/domain"
)

// ProgressFunc receives (processed, total) after every committed slice and
// once with (0, total) before the first attempt.
type ProgressFunc func(processed, total int)

// Upserter writes one slice of rows. It must be atomic per row and idempotent
// for tables with a conflict key.
type Upserter interface {
	Upsert(ctx context.Context, table string, conflictKey []string, rows []domain.CanonicalRow) error
}

// Options tunes the batching protocol.
type Options struct {
	InitialBatchSize int
	MaxBatchSize     int
	GrowthFactor     float64
	// Throttle is the pause after every committed slice.
	Throttle time.Duration
	// Cooldown is the pause after a transient failure.
	Cooldown time.Duration
}

// DefaultOptions returns the conservative defaults.
func DefaultOptions() Options {
	return Options{
		InitialBatchSize: 20,
		MaxBatchSize:     100,
		GrowthFactor:     1.1,
		Throttle:         100 * time.Millisecond,
		Cooldown:         time.Second,
	}
}

// Writer is the adaptive bulk writer. Batch state is local to each Write call,
// so one Writer may serve several imports.
type Writer struct {
	store  Upserter
	opts   Options
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
}

// NewWriter creates a writer over store.
func NewWriter(store Upserter, opts Options, logger *slog.Logger) *Writer {
	def := DefaultOptions()
	if opts.InitialBatchSize <= 0 {
		opts.InitialBatchSize = def.InitialBatchSize
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = def.MaxBatchSize
	}
	if opts.GrowthFactor < 1 {
		opts.GrowthFactor = def.GrowthFactor
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{
		store:  store,
		opts:   opts,
		logger: logger,
		sleep:  waitWithContext,
		now:    time.Now,
	}
}

// Write upserts every row of rows into table. It returns nil only when all rows
// are committed; a fatal failure is a *domain.WriteError whose Offset is the
// number of rows already committed. Cancelling ctx stops the write before the
// next slice; a slice already in flight is allowed to finish.
func (w *Writer) Write(ctx context.Context, table string, rows []domain.CanonicalRow, progress ProgressFunc) error {
	total := len(rows)
	report := func(done int) {
		if progress != nil {
			progress(done, total)
		}
	}

	if w.store == nil {
		return fatalError(table, 0, classConnection, domain.ErrConnectionUnavailable)
	}

	report(0)
	if total == 0 {
		return nil
	}

	prepared := Prepare(table, rows, w.now())
	key := ConflictKey(table)
	state := newBatchState(w.opts.InitialBatchSize, w.opts.MaxBatchSize)

	for state.cursor < total {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("write to %s stopped at row %d: %w", table, state.cursor, err)
		}

		state = state.attempt()
		lo, hi := state.window(total)
		err := w.store.Upsert(context.WithoutCancel(ctx), table, key, prepared[lo:hi])
		if err == nil {
			state = state.commit(hi-lo, w.opts.GrowthFactor, w.opts.MaxBatchSize)
			report(state.cursor)
			w.logger.Debug("slice committed", "table", table, "phase", state.phase, "cursor", state.cursor, "total", total, "next_batch", state.size)
			if state.cursor < total {
				if err := w.sleep(ctx, w.opts.Throttle); err != nil {
					return fmt.Errorf("write to %s stopped at row %d: %w", table, state.cursor, err)
				}
			}
			continue
		}

		class := classify(err)
		if class == classTransient {
			if next := state.shrink(); next.phase == phaseShrinkAndRetry {
				w.logger.Warn("transient write failure, shrinking batch",
					"table", table, "cursor", state.cursor, "from", state.size, "to", next.size, "error", err)
				state = next
				if err := w.sleep(ctx, w.opts.Cooldown); err != nil {
					return fmt.Errorf("write to %s stopped at row %d: %w", table, state.cursor, err)
				}
				continue
			}
		}

		state = state.abort()
		werr := fatalError(table, state.cursor, class, err)
		w.logger.Error("bulk write aborted", "table", table, "phase", state.phase, "class", class, "offset", state.cursor, "kind", werr.Kind, "error", err)
		return werr
	}
	return nil
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
