package bulkwrite

import "math"

type phase uint8

const (
	phaseIdle phase = iota
	phaseAttempting
	phaseCommitted
	phaseShrinkAndRetry
	phaseFatalAbort
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseAttempting:
		return "attempting"
	case phaseCommitted:
		return "committed"
	case phaseShrinkAndRetry:
		return "shrink_and_retry"
	case phaseFatalAbort:
		return "fatal_abort"
	}
	return "unknown"
}

// batchState is the cursor/size pair of one write. Transitions return a new
// value; the cursor only moves in commit.
type batchState struct {
	cursor int
	size   int
	phase  phase
}

func newBatchState(initial, limit int) batchState {
	limit = max(limit, 1)
	size := min(max(initial, 1), limit)
	return batchState{size: size, phase: phaseIdle}
}

// window returns the half-open row range of the next attempt.
func (s batchState) window(total int) (int, int) {
	lo := s.cursor
	hi := min(lo+s.size, total)
	return lo, hi
}

func (s batchState) attempt() batchState {
	s.phase = phaseAttempting
	return s
}

// commit advances past n rows and grows the batch by factor, capped at limit.
func (s batchState) commit(n int, factor float64, limit int) batchState {
	s.cursor += n
	grown := int(math.Ceil(float64(s.size) * factor))
	if grown <= s.size {
		grown = s.size + 1
	}
	s.size = min(grown, limit)
	s.phase = phaseCommitted
	return s
}

// shrink halves the batch without moving the cursor. A batch of one cannot
// shrink, which is a fatal abort.
func (s batchState) shrink() batchState {
	if s.size <= 1 {
		s.phase = phaseFatalAbort
		return s
	}
	s.size = max(s.size/2, 1)
	s.phase = phaseShrinkAndRetry
	return s
}

func (s batchState) abort() batchState {
	s.phase = phaseFatalAbort
	return s
}
