package engine

import (
	"context"
	"sort"
	"time"
)

// compactionIntervalSeconds is the background worker's wake interval,
// per spec.md §4.6.
const compactionIntervalSeconds = 2

// defaultMaxConcurrentWorkers bounds the number of flush/compaction
// goroutines that may run at once (SPEC_FULL.md §2).
const defaultMaxConcurrentWorkers = 8

// startCompactionWorker launches the single dedicated background worker
// that periodically scans every level but the last for a table count
// above threshold (spec.md §4.6).
func (e *Engine) startCompactionWorker() {
	e.compactionRunning.Store(true)
	e.compactionStop = make(chan struct{})
	e.compactionDone = make(chan struct{})
	go e.compactionWorker()
}

func (e *Engine) compactionWorker() {
	defer close(e.compactionDone)
	ticker := time.NewTicker(time.Duration(e.cfg.CompactionInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.compactionStop:
			return
		case <-ticker.C:
			for i := 0; i < len(e.levels)-1; i++ {
				count, locked := e.levels[i].tryCount()
				if !locked {
					continue
				}
				if count > e.cfg.threshold(i) {
					idx := i
					go e.runCompaction(idx)
				}
			}
		}
	}
}

// runCompaction wraps compactLevel with the bounded worker pool and a log
// correlation ID, the way each flush is tagged (SPEC_FULL.md §2).
func (e *Engine) runCompaction(i int) {
	id := runID()
	ctx := context.Background()
	if err := e.acquireWorker(ctx); err != nil {
		e.log.Printf("compact[%s] L%d: could not acquire worker slot: %v", id, i, err)
		return
	}
	defer e.releaseWorker()
	if err := e.compactLevel(i, id); err != nil {
		e.log.Printf("compact[%s] L%d: %v", id, i, err)
	}
}

// compactLevel implements spec.md §4.6. Locks for level i and i+1 are
// acquired together, in increasing index order, which is deadlock-free
// because every caller in the system acquires level locks in ascending
// order and never holds more than two at once (spec.md §5).
func (e *Engine) compactLevel(i int, id string) error {
	if i >= len(e.levels)-1 {
		return nil
	}
	lo, hi := e.levels[i], e.levels[i+1]
	lo.mu.Lock()
	hi.mu.Lock()

	if len(lo.tables) == 0 {
		hi.mu.Unlock()
		lo.mu.Unlock()
		return nil
	}

	input := make([]*sstable, len(lo.tables))
	copy(input, lo.tables)
	lo.tables = nil

	minKey, maxKey := compactionSpan(input)

	var overlapping, remaining []*sstable
	for _, t := range hi.tables {
		if rangesOverlap(minKey, maxKey, t.minKey, t.maxKey) {
			overlapping = append(overlapping, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	hi.tables = remaining
	input = append(input, overlapping...)

	// Compaction never targets L0: nextLevel is always i+1 >= 1, so
	// tombstones are always garbage-collected here (spec.md §4.6 step 6).
	output, err := e.mergeSSTables(input, i+1, true)
	if err != nil && err != errEmptyMerge {
		// Put the input tables back rather than lose them.
		lo.tables = append(lo.tables, input[:len(input)-len(overlapping)]...)
		hi.tables = append(hi.tables, overlapping...)
		sortTablesByMinKey(hi.tables)
		hi.mu.Unlock()
		lo.mu.Unlock()
		return err
	}
	if output != nil {
		hi.tables = append(hi.tables, output)
	}
	sortTablesByMinKey(hi.tables)

	hi.mu.Unlock()
	lo.mu.Unlock()

	for _, t := range input {
		t.remove()
	}
	e.log.Printf("compact[%s]: L%d -> L%d, %d inputs, output=%v", id, i, i+1, len(input), output != nil)
	return nil
}

// compactionSpan computes [min_key, max_key] over the input set: the
// smallest min_key and the largest max_key of any input table (spec.md
// §4.6 step 3). The L0 input arrives unsorted (L0 runs may overlap), so
// it is sorted by min_key first.
func compactionSpan(tables []*sstable) (min, max string) {
	sorted := make([]*sstable, len(tables))
	copy(sorted, tables)
	sortTablesByMinKey(sorted)
	min = sorted[0].minKey
	max = sorted[0].maxKey
	for _, t := range sorted[1:] {
		if t.minKey < min {
			min = t.minKey
		}
		if t.maxKey > max {
			max = t.maxKey
		}
	}
	return min, max
}

func rangesOverlap(aMin, aMax, bMin, bMax string) bool {
	lo := aMin
	if bMin > lo {
		lo = bMin
	}
	hi := aMax
	if bMax < hi {
		hi = bMax
	}
	return lo <= hi
}

func sortTablesByMinKey(tables []*sstable) {
	sort.Slice(tables, func(a, b int) bool { return tables[a].minKey < tables[b].minKey })
}

// mergeSSTables implements spec.md §4.6 step 6-7: read every record from
// every input, keep only the highest-timestamp version per key, drop
// tombstones when writing below L0, and write the survivors as a single
// new SSTable in nextLevel.
func (e *Engine) mergeSSTables(inputs []*sstable, nextLevel int, dropTombstones bool) (*sstable, error) {
	merged := make(map[string]Record)
	for _, t := range inputs {
		records, err := readAllRecords(t)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if existing, ok := merged[rec.Key()]; !ok || rec.newer(existing) {
				merged[rec.Key()] = rec
			}
		}
	}
	if len(merged) == 0 {
		return nil, errEmptyMerge
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	survivors := make([]Record, 0, len(keys))
	for _, k := range keys {
		rec := merged[k]
		if dropTombstones && rec.Tombstone() {
			continue
		}
		survivors = append(survivors, rec)
	}
	if len(survivors) == 0 {
		return nil, errEmptyMerge
	}

	if err := ensureLevelDir(e.dbDir, nextLevel); err != nil {
		return nil, err
	}
	path := sstablePath(e.dbDir, nextLevel, e.nextTS())
	return writeSSTable(path, nextLevel, survivors, e.cfg.BloomBitsPerEntry, e.cfg.BloomHashCount)
}

// readAllRecords reads every record out of an SSTable's data file in
// offset order, used only by the merge step (a full sequential scan, not
// the point-lookup path).
func readAllRecords(t *sstable) ([]Record, error) {
	type keyOffset struct {
		key    string
		offset int64
	}
	ordered := make([]keyOffset, 0, len(t.offsets))
	for k, off := range t.offsets {
		ordered = append(ordered, keyOffset{k, off})
	}
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].offset < ordered[b].offset })

	f, err := openForRead(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records := make([]Record, 0, len(ordered))
	for _, ko := range ordered {
		rec, ok := readDataRecordAt(f, ko.offset, ko.key)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
