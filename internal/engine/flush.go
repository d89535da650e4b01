package engine

import (
	"context"
	"sort"
)

// maybeTriggerFlushLocked implements the flush trigger of spec.md §4.5/§4.8:
// once the active memtable reaches the byte threshold, any existing
// immutable memtable is detached from the engine and handed to its own
// flush goroutine, then the pointer swap promotes active to immutable and a
// fresh active memtable takes its place. The older memtable is not written
// out before the swap, so two flushes can be in flight at once; the engine
// itself never holds more than one immutable memtable. The write-out of the
// new immutable runs on a worker. The caller must hold memtableMu.
func (e *Engine) maybeTriggerFlushLocked() {
	if e.active.sizeBytes < e.cfg.MemtableMaxBytes {
		return
	}
	if e.immutable != nil {
		// Rare: a flush worker hasn't caught up with the previous
		// rotation yet. Hand it to its own goroutine rather than lose
		// the at-most-one-immutable invariant.
		stale := e.immutable
		e.immutable = nil
		go e.flushMemtable(stale, runID())
	}
	e.immutable = e.active
	e.active = newMemtable()

	toFlush := e.immutable
	id := runID()
	go func() {
		ctx := context.Background()
		if err := e.acquireWorker(ctx); err != nil {
			e.log.Printf("flush[%s]: could not acquire worker slot: %v", id, err)
			return
		}
		defer e.releaseWorker()
		e.flushMemtable(toFlush, id)
	}()
}

// flushImmutable flushes whatever the current immutable memtable is, if
// any, synchronously, and rotates the WAL afterward. Used by Sync and by
// Close.
func (e *Engine) flushImmutable() error {
	e.memtableMu.Lock()
	mem := e.immutable
	e.immutable = nil
	e.memtableMu.Unlock()

	if mem != nil && !mem.empty() {
		if _, err := e.writeFlushedSSTable(mem); err != nil {
			// Failure: restore the immutable memtable so no data is
			// lost and a later attempt can retry (spec.md §4.5/§7).
			e.memtableMu.Lock()
			if e.immutable == nil {
				e.immutable = mem
			}
			e.memtableMu.Unlock()
			return err
		}
	}
	return e.rotateWAL()
}

// flushMemtable is the worker-side flush: write mem out as an L0 SSTable,
// then drop the reference and rotate the WAL. On failure the partial
// files are orphaned and mem is put back as the immutable memtable. No
// background timer retries it: it is written out again by the next Sync
// (or Close), or handed to a new flush goroutine by the next
// threshold-triggered flush.
func (e *Engine) flushMemtable(mem *memtable, id string) {
	if mem == nil || mem.empty() {
		e.rotateWAL()
		return
	}
	if _, err := e.writeFlushedSSTable(mem); err != nil {
		e.log.Printf("flush[%s]: failed, will retry next cycle: %v", id, err)
		e.memtableMu.Lock()
		if e.immutable == nil {
			e.immutable = mem
		}
		e.memtableMu.Unlock()
		return
	}
	// Release the now-durable memtable so a later trigger doesn't mistake
	// it for a stale immutable and reflush the same data (spec.md §4.5
	// step 6, §3's memtable lifecycle).
	e.memtableMu.Lock()
	if e.immutable == mem {
		e.immutable = nil
	}
	e.memtableMu.Unlock()
	if err := e.rotateWAL(); err != nil {
		e.log.Printf("flush[%s]: wal rotation failed: %v", id, err)
	}
}

// writeFlushedSSTable performs the five on-disk steps of spec.md §4.5:
// allocate a path, build the bloom filter while streaming records in
// ascending key order, write the index, and push the handle onto L0.
func (e *Engine) writeFlushedSSTable(mem *memtable) (*sstable, error) {
	records := mem.all()
	path := sstablePath(e.dbDir, 0, e.nextTS())
	if err := ensureLevelDir(e.dbDir, 0); err != nil {
		return nil, err
	}
	table, err := writeSSTable(path, 0, records, e.cfg.BloomBitsPerEntry, e.cfg.BloomHashCount)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, nil
	}
	e.levels[0].append(table)
	return table, nil
}

// rotateWAL re-logs the active memtable's current content into a fresh
// WAL file, under the memtable lock, per spec.md §4.2.
func (e *Engine) rotateWAL() error {
	e.memtableMu.Lock()
	defer e.memtableMu.Unlock()
	return e.wal.rotate(e.active.all())
}

// replayWAL replays every well-formed record into the active memtable at
// startup, allocating a fresh timestamp for each (spec.md §4.2).
func (e *Engine) replayWAL() error {
	entries, err := replayAllWAL(e.wal.path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		ts := e.nextTS()
		if entry.op == walOpDel {
			e.active.put(NewTombstone(entry.key, ts))
		} else {
			e.active.put(NewRecord(entry.key, entry.value, ts))
		}
	}
	if len(entries) > 0 {
		e.log.Printf("wal replay: %d operations recovered", len(entries))
	}
	return nil
}

// loadSSTables scans every L<i> directory for *.sst files at startup. A
// table whose index fails to load is skipped, leaving its data file on
// disk (spec.md §6, §7).
func (e *Engine) loadSSTables() {
	for i := 0; i < e.cfg.LevelCount; i++ {
		dir := sstableDir(e.dbDir, i)
		paths := listSSTableFiles(dir)
		for _, p := range paths {
			table, err := loadSSTable(p, i)
			if err != nil {
				e.log.Printf("skipping corrupt sstable %s: %v", p, err)
				continue
			}
			table.path = p
			e.levels[i].tables = append(e.levels[i].tables, table)
		}
		sort.Slice(e.levels[i].tables, func(a, b int) bool {
			return e.levels[i].tables[a].minKey < e.levels[i].tables[b].minKey
		})
	}
}
