package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactLevel_HighestTimestampWins(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, Config{MemtableMaxBytes: 1 << 20})
	require.NoError(t, err)
	defer e.Close()

	older, err := writeSSTable(sstablePathFor(t, dir, 0, 1), 0, []Record{NewRecord("a", "old", 1)}, defaultBloomBitsPerEntry, defaultBloomHashCount)
	require.NoError(t, err)
	newer, err := writeSSTable(sstablePathFor(t, dir, 0, 2), 0, []Record{NewRecord("a", "new", 2)}, defaultBloomBitsPerEntry, defaultBloomHashCount)
	require.NoError(t, err)

	e.levels[0].tables = []*sstable{older, newer}

	require.NoError(t, e.compactLevel(0, "t"))

	rec, ok := e.levels[1].tables[0].lookup("a")
	require.True(t, ok)
	require.Equal(t, "new", rec.Value())
}

func TestCompactLevel_NonOverlappingStaysInPlace(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, Config{MemtableMaxBytes: 1 << 20})
	require.NoError(t, err)
	defer e.Close()

	l0, err := writeSSTable(sstablePathFor(t, dir, 0, 1), 0, []Record{NewRecord("m", "v", 1)}, defaultBloomBitsPerEntry, defaultBloomHashCount)
	require.NoError(t, err)
	untouched, err := writeSSTable(sstablePathFor(t, dir, 1, 2), 1, []Record{NewRecord("z", "far", 1)}, defaultBloomBitsPerEntry, defaultBloomHashCount)
	require.NoError(t, err)

	e.levels[0].tables = []*sstable{l0}
	e.levels[1].tables = []*sstable{untouched}

	require.NoError(t, e.compactLevel(0, "t"))

	found := false
	for _, table := range e.levels[1].tables {
		if table == untouched {
			found = true
		}
	}
	require.True(t, found, "non-overlapping table should remain in place")
}

func TestCompactLevel_EmptyInputProducesNoOutput(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, Config{MemtableMaxBytes: 1 << 20})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.compactLevel(0, "t"))
	require.Empty(t, e.levels[1].tables)
}

func sstablePathFor(t *testing.T, dir string, level int, id uint64) string {
	require.NoError(t, ensureLevelDir(dir, level))
	return sstablePath(dir, level, id)
}
