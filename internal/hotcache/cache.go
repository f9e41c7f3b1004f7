// Package hotcache holds the most recent window of fact rows in memory.
package hotcache

import (
	"sync/atomic"
	"time"

	"github.com/rpattn/opsdash/internal/domain"
)

// Snapshot is an immutable view of the hot window. Callers must not modify
// the maps or slices it holds.
type Snapshot struct {
	Anchor      time.Time                        `json:"anchor"`
	WindowStart time.Time                        `json:"windowStart"`
	WindowEnd   time.Time                        `json:"windowEnd"`
	Stats       map[string]domain.TableStats     `json:"stats"`
	Rows        map[string][]domain.CanonicalRow `json:"rows"`
	RefreshedAt time.Time                        `json:"refreshedAt"`
}

// TableRows returns the cached rows of table.
func (s *Snapshot) TableRows(table string) []domain.CanonicalRow {
	if s == nil {
		return nil
	}
	return s.Rows[table]
}

// Window returns [anchor - days, anchor] with both ends at midnight UTC.
func Window(anchor time.Time, days int) (time.Time, time.Time) {
	y, m, d := anchor.UTC().Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, 0, -days), end
}

// Cache publishes snapshots to concurrent readers.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

func New() *Cache {
	return &Cache{}
}

// Load returns the current snapshot, or nil before the first refresh.
func (c *Cache) Load() *Snapshot {
	return c.current.Load()
}

// Store replaces the snapshot wholesale.
func (c *Cache) Store(s *Snapshot) {
	c.current.Store(s)
}
