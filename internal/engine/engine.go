// Package engine implements BlinkDB's storage core: an in-memory write
// buffer, a durability log, immutable on-disk runs organized into levels,
// a background compaction scheduler, a bloom filter and a read-path
// cache. See SPEC_FULL.md for the full contract.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Engine is the single-writer, multi-reader façade coordinating the
// memtable, cache, WAL and levels. It exclusively owns the active and
// immutable memtables, every SSTable handle, the cache, the WAL file
// handle and the background compaction worker (spec.md §3 Ownership).
type Engine struct {
	cfg   Config
	dbDir string
	log   *log.Logger

	memtableMu sync.Mutex
	active     *memtable
	immutable  *memtable

	levels []*level

	cache *lruCache

	wal *wal

	nextTimestamp atomic.Uint64

	workers *semaphore.Weighted

	compactionRunning atomic.Bool
	compactionStop     chan struct{}
	compactionDone     chan struct{}
}

// Open creates or reopens an engine rooted at dbDir, replaying the WAL and
// loading every SSTable it finds, then starts the background compaction
// worker. The caller must call Close to flush and shut down cleanly.
func Open(dbDir string, cfg Config) (*Engine, error) {
	cfg = cfg.WithDefaults()

	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create db dir: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		dbDir:   dbDir,
		log:     log.New(os.Stderr, "[engine] ", log.LstdFlags),
		active:  newMemtable(),
		cache:   newLRUCache(cfg.CacheCapacity),
		levels:  make([]*level, cfg.LevelCount),
		workers: semaphore.NewWeighted(cfg.MaxConcurrentWorkers),
	}
	for i := range e.levels {
		e.levels[i] = &level{}
	}

	w, err := newWAL(walPath(dbDir))
	if err != nil {
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}
	e.wal = w

	if err := e.replayWAL(); err != nil {
		return nil, fmt.Errorf("engine: replay wal: %w", err)
	}

	e.loadSSTables()

	e.startCompactionWorker()
	e.log.Printf("opened at %s: %d levels, memtable threshold %d bytes", dbDir, cfg.LevelCount, cfg.MemtableMaxBytes)
	return e, nil
}

func (e *Engine) nextTS() uint64 {
	return e.nextTimestamp.Add(1)
}

// Set stores value under key. Per spec.md §6, it fails only on a null
// argument; in normal operation it always succeeds.
func (e *Engine) Set(key, value string) (bool, error) {
	if key == "" {
		return false, errNullKey
	}
	if err := e.wal.appendSet(key, value); err != nil {
		return false, err
	}
	e.cache.put(key, value)

	e.memtableMu.Lock()
	e.active.put(NewRecord(key, value, e.nextTS()))
	e.maybeTriggerFlushLocked()
	e.memtableMu.Unlock()
	return true, nil
}

// Del marks key as deleted. Per spec.md §6, it always succeeds for a
// non-null key.
func (e *Engine) Del(key string) (bool, error) {
	if key == "" {
		return false, errNullKey
	}
	if err := e.wal.appendDel(key); err != nil {
		return false, err
	}
	e.cache.evict(key)

	e.memtableMu.Lock()
	e.active.put(NewTombstone(key, e.nextTS()))
	e.maybeTriggerFlushLocked()
	e.memtableMu.Unlock()
	return true, nil
}

// Get returns the value stored under key, or !found if the key was never
// written or its latest version is a tombstone (spec.md §6).
func (e *Engine) Get(key string) (value string, found bool, err error) {
	if key == "" {
		return "", false, errNullKey
	}
	if v, ok := e.cache.get(key); ok {
		return v, true, nil
	}

	if rec, ok := e.lookupMemtables(key); ok {
		if rec.Tombstone() {
			return "", false, nil
		}
		e.cache.put(key, rec.Value())
		return rec.Value(), true, nil
	}

	rec, ok := e.lookupLevels(key)
	if !ok || rec.Tombstone() {
		return "", false, nil
	}
	e.cache.put(key, rec.Value())
	return rec.Value(), true, nil
}

// lookupMemtables checks the active memtable then the immutable one,
// under the memtable lock, per spec.md §4.7 step 2. The lock is released
// before the caller descends to disk.
func (e *Engine) lookupMemtables(key string) (Record, bool) {
	e.memtableMu.Lock()
	defer e.memtableMu.Unlock()

	if rec, ok := e.active.get(key); ok {
		return rec, true
	}
	if e.immutable != nil {
		if rec, ok := e.immutable.get(key); ok {
			return rec, true
		}
	}
	return Record{}, false
}

// lookupLevels walks every level in order, collecting the highest
// timestamp version seen across the entire walk (spec.md §4.7 step 3-4).
// Because timestamps are globally monotonic, the winner is the true
// latest write regardless of visit order.
func (e *Engine) lookupLevels(key string) (Record, bool) {
	var winner Record
	found := false

	for _, lv := range e.levels {
		lv.mu.Lock()
		tables := lv.tables
		for i := len(tables) - 1; i >= 0; i-- {
			t := tables[i]
			if !t.covers(key) {
				continue
			}
			if rec, ok := t.lookup(key); ok {
				if !found || rec.newer(winner) {
					winner = rec
					found = true
				}
			}
		}
		lv.mu.Unlock()
	}
	return winner, found
}

// Sync is the durability barrier: on return, every acknowledged mutation
// is either in an SSTable or recorded in a WAL that will replay to the
// same state (spec.md §4.8, §6).
func (e *Engine) Sync() error {
	e.memtableMu.Lock()
	if e.active != nil && !e.active.empty() {
		if e.immutable != nil {
			e.memtableMu.Unlock()
			if err := e.flushImmutable(); err != nil {
				return err
			}
			e.memtableMu.Lock()
		}
		e.immutable = e.active
		e.active = newMemtable()
	}
	e.memtableMu.Unlock()
	return e.flushImmutable()
}

// Close stops the compaction worker, performs a final sync and closes the
// WAL file handle (spec.md §5 Cancellation: "the destructor syncs ... and
// closes the WAL").
func (e *Engine) Close() error {
	e.compactionRunning.Store(false)
	if e.compactionStop != nil {
		close(e.compactionStop)
	}
	if e.compactionDone != nil {
		<-e.compactionDone
	}
	if err := e.Sync(); err != nil {
		return err
	}
	return e.wal.close()
}

var errNullKey = fmt.Errorf("engine: key must not be empty")

// runID tags a background unit of work (a flush or a compaction round)
// for log correlation, per SPEC_FULL.md §2.
func runID() string {
	return uuid.NewString()[:8]
}

// acquireWorker blocks until a worker slot is free, bounding the number of
// concurrently running flush/compaction goroutines (SPEC_FULL.md §2).
func (e *Engine) acquireWorker(ctx context.Context) error {
	return e.workers.Acquire(ctx, 1)
}

func (e *Engine) releaseWorker() {
	e.workers.Release(1)
}
