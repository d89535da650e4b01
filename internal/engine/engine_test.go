package engine

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T, cfg Config) *Engine {
	dir := t.TempDir()
	e, err := Open(dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func smallMemtableConfig() Config {
	return Config{MemtableMaxBytes: 256}
}

func TestEngine_EmptyGetIsAbsent(t *testing.T) {
	e := openTestEngine(t, Config{})
	_, found, err := e.Get("x")
	require.NoError(t, err)
	require.False(t, found)
}

func TestEngine_SetThenGet(t *testing.T) {
	e := openTestEngine(t, Config{})
	ok, err := e.Set("a", "1")
	require.NoError(t, err)
	require.True(t, ok)

	v, found, err := e.Get("a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", v)
}

func TestEngine_OverwriteReturnsLatest(t *testing.T) {
	e := openTestEngine(t, Config{})
	_, _ = e.Set("a", "1")
	_, _ = e.Set("a", "2")

	v, found, _ := e.Get("a")
	require.True(t, found)
	require.Equal(t, "2", v)
}

func TestEngine_DeleteShadowsValue(t *testing.T) {
	e := openTestEngine(t, Config{})
	_, _ = e.Set("a", "1")
	_, _ = e.Del("a")

	_, found, _ := e.Get("a")
	require.False(t, found)
}

func TestEngine_NullKeyIsError(t *testing.T) {
	e := openTestEngine(t, Config{})
	_, err := e.Set("", "1")
	require.Error(t, err)
	_, err = e.Del("")
	require.Error(t, err)
	_, _, err = e.Get("")
	require.Error(t, err)
}

func TestEngine_FlushProducesSSTableOnDisk(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, smallMemtableConfig())
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%032d", i)
		_, err := e.Set(key, "0123456789abcdef0123456789abcdef")
		require.NoError(t, err)
	}
	require.NoError(t, e.Sync())

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%032d", i)
		v, found, err := e.Get(key)
		require.NoError(t, err)
		require.True(t, found, "missing key %s", key)
		require.Equal(t, "0123456789abcdef0123456789abcdef", v)
	}

	files := listSSTableFiles(filepath.Join(dir, "L0"))
	require.NotEmpty(t, files, "expected at least one L0 sstable after flush")
}

func TestEngine_FlushMemtableReleasesImmutable(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, Config{MemtableMaxBytes: 1 << 20})
	require.NoError(t, err)
	defer e.Close()

	mem := newMemtable()
	mem.put(NewRecord("a", "1", 1))
	e.immutable = mem

	e.flushMemtable(mem, "t")
	require.Nil(t, e.immutable, "a successfully flushed immutable memtable must be released")
}

func TestEngine_RepeatedSyncDoesNotReflushSameData(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, smallMemtableConfig())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Set("a", "v")
	require.NoError(t, err)
	require.NoError(t, e.Sync())
	before := listSSTableFiles(filepath.Join(dir, "L0"))

	require.NoError(t, e.Sync())
	after := listSSTableFiles(filepath.Join(dir, "L0"))

	require.Equal(t, len(before), len(after), "syncing with no new writes must not produce a duplicate sstable")
}

func TestEngine_ReopenSurvivesCrash(t *testing.T) {
	dir := t.TempDir()
	cfg := smallMemtableConfig()

	e, err := Open(dir, cfg)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := e.Set(fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
		require.NoError(t, err)
	}
	// Simulate an abrupt exit: close the WAL handle directly, without a
	// clean Sync/Close, so only what was already fsynced is durable.
	require.NoError(t, e.wal.close())

	reopened, err := Open(dir, cfg)
	require.NoError(t, err)
	defer reopened.Close()

	for i := 0; i < 50; i++ {
		v, found, err := reopened.Get(fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, fmt.Sprintf("v%d", i), v)
	}
}

func TestEngine_CompactionDropsTombstonesBelowL0(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{MemtableMaxBytes: 64, L0Threshold: 1, LevelSizeRatio: 1}
	e, err := Open(dir, cfg)
	require.NoError(t, err)
	defer e.Close()

	_, _ = e.Set("a", "1")
	require.NoError(t, e.Sync())
	_, _ = e.Del("a")
	require.NoError(t, e.Sync())

	require.NoError(t, e.compactLevel(0, "test"))

	for _, lv := range e.levels[1:] {
		for _, table := range lv.snapshot() {
			_, ok := table.lookup("a")
			require.False(t, ok, "tombstone for 'a' should have been dropped below L0")
		}
	}
}

func TestEngine_ConcurrentWritersDisjointPrefixes(t *testing.T) {
	e := openTestEngine(t, smallMemtableConfig())
	const writers = 8
	const perWriter = 200

	done := make(chan struct{})
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perWriter; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				_, err := e.Set(key, key)
				require.NoError(t, err)
			}
		}(w)
	}
	for w := 0; w < writers; w++ {
		<-done
	}

	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			key := fmt.Sprintf("w%d-k%d", w, i)
			v, found, err := e.Get(key)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, key, v)
		}
	}
}
