package engine

import (
	"github.com/davecgh/go-spew/spew"
)

// LevelStats summarizes one level for the admin/debug surface.
type LevelStats struct {
	Level      int      `json:"level"`
	TableCount int      `json:"table_count"`
	KeyRanges  []string `json:"key_ranges"`
}

// Stats is a point-in-time snapshot of the engine's internal shape, used
// by the admin HTTP server's /stats endpoint (SPEC_FULL.md §6).
type Stats struct {
	ActiveMemtableKeys    int          `json:"active_memtable_keys"`
	ActiveMemtableBytes   int          `json:"active_memtable_bytes"`
	ImmutableMemtablePresent bool      `json:"immutable_memtable_present"`
	CacheEntries          int          `json:"cache_entries"`
	Timestamp              uint64      `json:"timestamp"`
	Levels                 []LevelStats `json:"levels"`
}

// Stats takes a consistent-enough snapshot for observability purposes; it
// is not used on any read/write path and does not need the same lock
// discipline as spec.md §5 mandates for correctness-critical paths.
func (e *Engine) Stats() Stats {
	e.memtableMu.Lock()
	s := Stats{
		ActiveMemtableKeys:  e.active.size(),
		ActiveMemtableBytes: e.active.sizeBytes,
	}
	if e.immutable != nil {
		s.ImmutableMemtablePresent = true
	}
	e.memtableMu.Unlock()

	s.CacheEntries = e.cache.len()
	s.Timestamp = e.nextTimestamp.Load()

	for i, lv := range e.levels {
		lv.mu.Lock()
		ls := LevelStats{Level: i, TableCount: len(lv.tables)}
		for _, t := range lv.tables {
			ls.KeyRanges = append(ls.KeyRanges, t.minKey+".."+t.maxKey)
		}
		lv.mu.Unlock()
		s.Levels = append(s.Levels, ls)
	}
	return s
}

// DebugTree renders the same snapshot spew.Sdump does for human eyes, the
// way the original implementation's debug_print_tree did for its
// operators (SPEC_FULL.md §6's /debug/tree).
func (e *Engine) DebugTree() string {
	return spew.Sdump(e.Stats())
}
