package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemtable_SizeAccounting(t *testing.T) {
	m := newMemtable()
	assert.True(t, m.empty())

	m.put(NewRecord("a", "1", 1))
	assert.Equal(t, len("a")+len("1"), m.sizeBytes)

	// Updating a key subtracts the old footprint before adding the new.
	m.put(NewRecord("a", "12345", 2))
	assert.Equal(t, len("a")+len("12345"), m.sizeBytes)

	m.put(NewRecord("b", "x", 3))
	assert.Equal(t, 2, m.size())
}

func TestMemtable_TombstoneShadows(t *testing.T) {
	m := newMemtable()
	m.put(NewRecord("a", "1", 1))
	m.put(NewTombstone("a", 2))

	rec, ok := m.get("a")
	assert.True(t, ok)
	assert.True(t, rec.Tombstone())
	assert.Equal(t, "", rec.Value())
}

func TestMemtable_AllAscending(t *testing.T) {
	m := newMemtable()
	m.put(NewRecord("c", "3", 1))
	m.put(NewRecord("a", "1", 2))
	m.put(NewRecord("b", "2", 3))

	all := m.all()
	keys := make([]string, len(all))
	for i, r := range all {
		keys[i] = r.Key()
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
