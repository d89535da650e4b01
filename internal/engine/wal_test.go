package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempWAL(t *testing.T) *wal {
	dir := t.TempDir()
	w, err := newWAL(filepath.Join(dir, "wal.log"))
	require.NoError(t, err)
	t.Cleanup(func() { w.close() })
	return w
}

func TestWAL_AppendAndReplay(t *testing.T) {
	w := tempWAL(t)

	require.NoError(t, w.appendSet("alpha", "1"))
	require.NoError(t, w.appendSet("beta", "2"))
	require.NoError(t, w.appendDel("alpha"))

	entries, err := replayAllWAL(w.path)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, walOpSet, entries[0].op)
	require.Equal(t, "alpha", entries[0].key)
	require.Equal(t, "1", entries[0].value)

	require.Equal(t, walOpDel, entries[2].op)
	require.Equal(t, "alpha", entries[2].key)
}

func TestWAL_ReplayMissingFileIsClean(t *testing.T) {
	entries, err := replayAllWAL(filepath.Join(t.TempDir(), "nope.log"))
	require.NoError(t, err)
	require.Nil(t, entries)
}

func TestWAL_TornTailStopsAtPriorBoundary(t *testing.T) {
	w := tempWAL(t)
	require.NoError(t, w.appendSet("a", "1"))
	require.NoError(t, w.appendSet("b", "2"))
	require.NoError(t, w.close())

	// Truncate mid-record to simulate a torn write at the tail.
	info, err := os.Stat(w.path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(w.path, info.Size()-3))

	entries, err := replayAllWAL(w.path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a", entries[0].key)
}

func TestWAL_Rotate(t *testing.T) {
	w := tempWAL(t)
	require.NoError(t, w.appendSet("a", "1"))
	require.NoError(t, w.appendSet("b", "2"))

	survivors := []Record{NewRecord("b", "2", 1)}
	require.NoError(t, w.rotate(survivors))

	entries, err := replayAllWAL(w.path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].key)
}
